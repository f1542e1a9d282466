package photostream

import (
	"sync"

	"github.com/zfogg/photostream/cli/pkg/api"
)

// listeners is a registration list safe for concurrent add and remove.
// Callbacks run on a snapshot taken under the lock.
type listeners[T comparable] struct {
	mu    sync.Mutex
	items []T
}

func (l *listeners[T]) add(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range l.items {
		if item == v {
			return
		}
	}
	l.items = append(l.items, v)
}

func (l *listeners[T]) remove(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, item := range l.items {
		if item == v {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			return
		}
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *listeners[T]) each(fn func(T)) {
	l.mu.Lock()
	snapshot := make([]T, len(l.items))
	copy(snapshot, l.items)
	l.mu.Unlock()

	for _, item := range snapshot {
		fn(item)
	}
}

type PhotoListener interface {
	OnPhotosLoaded(result *api.PhotoQueryResult)
	OnMorePhotosLoaded(result *api.PhotoQueryResult)
	OnLoadPhotosFailed(err error)
	OnNewPhoto(photo *api.Photo)
	OnPhotoDeleted(photoID int)
	OnDeletePhotoFailed(photoID int, err error)
}

type SearchListener interface {
	OnSearchResults(query string, result *api.PhotoQueryResult)
	OnSearchFailed(query string, err error)
}

type UploadListener interface {
	OnPhotoUploaded(photo *api.Photo)
	OnUploadFailed(err error)
}

type VoteListener interface {
	OnPhotoLiked(photoID int)
	OnPhotoDisliked(photoID int)
	OnVoteFailed(photoID int, err error)
	OnNewVote(vote *api.Vote)
}

type CommentListener interface {
	OnCommentsLoaded(result *api.CommentsQueryResult)
	OnLoadCommentsFailed(photoID int, err error)
	OnNewComment(comment *api.Comment)
	OnCommentPosted(comment *api.Comment)
	OnPostCommentFailed(photoID int, err error)
	OnCommentDeleted(photoID, commentID int)
	OnDeleteCommentFailed(commentID int, err error)
}

type RequestListener interface {
	OnRequestStarted(kind RequestKind)
	OnRequestFinished(kind RequestKind)
}

// ConnectionListener follows the push connection
type ConnectionListener interface {
	OnConnected()
	OnDisconnected(err error)
	OnConnectionError(err error)
}

// PhotoListenerFuncs implements PhotoListener with optional funcs. Register
// it by pointer.
type PhotoListenerFuncs struct {
	PhotosLoaded      func(*api.PhotoQueryResult)
	MorePhotosLoaded  func(*api.PhotoQueryResult)
	LoadPhotosFailed  func(error)
	NewPhoto          func(*api.Photo)
	PhotoDeleted      func(int)
	DeletePhotoFailed func(int, error)
}

func (f *PhotoListenerFuncs) OnPhotosLoaded(r *api.PhotoQueryResult) {
	if f.PhotosLoaded != nil {
		f.PhotosLoaded(r)
	}
}

func (f *PhotoListenerFuncs) OnMorePhotosLoaded(r *api.PhotoQueryResult) {
	if f.MorePhotosLoaded != nil {
		f.MorePhotosLoaded(r)
	}
}

func (f *PhotoListenerFuncs) OnLoadPhotosFailed(err error) {
	if f.LoadPhotosFailed != nil {
		f.LoadPhotosFailed(err)
	}
}

func (f *PhotoListenerFuncs) OnNewPhoto(p *api.Photo) {
	if f.NewPhoto != nil {
		f.NewPhoto(p)
	}
}

func (f *PhotoListenerFuncs) OnPhotoDeleted(id int) {
	if f.PhotoDeleted != nil {
		f.PhotoDeleted(id)
	}
}

func (f *PhotoListenerFuncs) OnDeletePhotoFailed(id int, err error) {
	if f.DeletePhotoFailed != nil {
		f.DeletePhotoFailed(id, err)
	}
}

type SearchListenerFuncs struct {
	SearchResults func(string, *api.PhotoQueryResult)
	SearchFailed  func(string, error)
}

func (f *SearchListenerFuncs) OnSearchResults(q string, r *api.PhotoQueryResult) {
	if f.SearchResults != nil {
		f.SearchResults(q, r)
	}
}

func (f *SearchListenerFuncs) OnSearchFailed(q string, err error) {
	if f.SearchFailed != nil {
		f.SearchFailed(q, err)
	}
}

type UploadListenerFuncs struct {
	PhotoUploaded func(*api.Photo)
	UploadFailed  func(error)
}

func (f *UploadListenerFuncs) OnPhotoUploaded(p *api.Photo) {
	if f.PhotoUploaded != nil {
		f.PhotoUploaded(p)
	}
}

func (f *UploadListenerFuncs) OnUploadFailed(err error) {
	if f.UploadFailed != nil {
		f.UploadFailed(err)
	}
}

type VoteListenerFuncs struct {
	PhotoLiked    func(int)
	PhotoDisliked func(int)
	VoteFailed    func(int, error)
	NewVote       func(*api.Vote)
}

func (f *VoteListenerFuncs) OnPhotoLiked(id int) {
	if f.PhotoLiked != nil {
		f.PhotoLiked(id)
	}
}

func (f *VoteListenerFuncs) OnPhotoDisliked(id int) {
	if f.PhotoDisliked != nil {
		f.PhotoDisliked(id)
	}
}

func (f *VoteListenerFuncs) OnVoteFailed(id int, err error) {
	if f.VoteFailed != nil {
		f.VoteFailed(id, err)
	}
}

func (f *VoteListenerFuncs) OnNewVote(v *api.Vote) {
	if f.NewVote != nil {
		f.NewVote(v)
	}
}

type CommentListenerFuncs struct {
	CommentsLoaded      func(*api.CommentsQueryResult)
	LoadCommentsFailed  func(int, error)
	NewComment          func(*api.Comment)
	CommentPosted       func(*api.Comment)
	PostCommentFailed   func(int, error)
	CommentDeleted      func(photoID, commentID int)
	DeleteCommentFailed func(int, error)
}

func (f *CommentListenerFuncs) OnCommentsLoaded(r *api.CommentsQueryResult) {
	if f.CommentsLoaded != nil {
		f.CommentsLoaded(r)
	}
}

func (f *CommentListenerFuncs) OnLoadCommentsFailed(photoID int, err error) {
	if f.LoadCommentsFailed != nil {
		f.LoadCommentsFailed(photoID, err)
	}
}

func (f *CommentListenerFuncs) OnNewComment(c *api.Comment) {
	if f.NewComment != nil {
		f.NewComment(c)
	}
}

func (f *CommentListenerFuncs) OnCommentPosted(c *api.Comment) {
	if f.CommentPosted != nil {
		f.CommentPosted(c)
	}
}

func (f *CommentListenerFuncs) OnPostCommentFailed(photoID int, err error) {
	if f.PostCommentFailed != nil {
		f.PostCommentFailed(photoID, err)
	}
}

func (f *CommentListenerFuncs) OnCommentDeleted(photoID, commentID int) {
	if f.CommentDeleted != nil {
		f.CommentDeleted(photoID, commentID)
	}
}

func (f *CommentListenerFuncs) OnDeleteCommentFailed(commentID int, err error) {
	if f.DeleteCommentFailed != nil {
		f.DeleteCommentFailed(commentID, err)
	}
}

type RequestListenerFuncs struct {
	RequestStarted  func(RequestKind)
	RequestFinished func(RequestKind)
}

func (f *RequestListenerFuncs) OnRequestStarted(k RequestKind) {
	if f.RequestStarted != nil {
		f.RequestStarted(k)
	}
}

func (f *RequestListenerFuncs) OnRequestFinished(k RequestKind) {
	if f.RequestFinished != nil {
		f.RequestFinished(k)
	}
}

type ConnectionListenerFuncs struct {
	Connected       func()
	Disconnected    func(error)
	ConnectionError func(error)
}

func (f *ConnectionListenerFuncs) OnConnected() {
	if f.Connected != nil {
		f.Connected()
	}
}

func (f *ConnectionListenerFuncs) OnDisconnected(err error) {
	if f.Disconnected != nil {
		f.Disconnected(err)
	}
}

func (f *ConnectionListenerFuncs) OnConnectionError(err error) {
	if f.ConnectionError != nil {
		f.ConnectionError(err)
	}
}
