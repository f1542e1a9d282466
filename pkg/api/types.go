package api

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
)

// ErrInvalidInput is returned before any request is made when arguments
// cannot form a valid call
var ErrInvalidInput = errors.New("invalid input")

// MaxCommentLength is the longest comment message the API accepts
const MaxCommentLength = 2000

// Photo is a stream entry. Image only travels on the wire; once stored
// locally the client points ImagePath at the file and drops Image.
type Photo struct {
	ID           int    `json:"id"`
	Description  string `json:"description"`
	Liked        bool   `json:"liked"`
	Deleteable   bool   `json:"deleteable"`
	CommentCount int    `json:"comment_count"`
	Votes        int    `json:"votes"`
	Image        string `json:"image,omitempty"`
	ImagePath    string `json:"image_path,omitempty"`
}

// IncrementComments bumps the comment count after a new comment
func (p *Photo) IncrementComments() {
	p.CommentCount++
}

// DecrementComments lowers the comment count, never below zero
func (p *Photo) DecrementComments() {
	if p.CommentCount > 0 {
		p.CommentCount--
	}
}

// SetVotes replaces the vote count with the server's value
func (p *Photo) SetVotes(votes int) {
	p.Votes = votes
}

// SetLiked records this installation's like state
func (p *Photo) SetLiked(liked bool) {
	p.Liked = liked
}

// Comment is a message attached to a photo
type Comment struct {
	ID         int    `json:"id"`
	PhotoID    int    `json:"photo_id"`
	Message    string `json:"message"`
	Deleteable bool   `json:"deleteable"`
}

// PhotoQueryResult is one page of the stream or of a search. It doubles as
// the blob stored in the photo cache.
type PhotoQueryResult struct {
	Page        int     `json:"page"`
	Photos      []Photo `json:"results"`
	HasNextPage bool    `json:"has_next_page,omitempty"`
}

// FindPhoto returns the photo with the given id, if present on this page
func (r *PhotoQueryResult) FindPhoto(id int) *Photo {
	for i := range r.Photos {
		if r.Photos[i].ID == id {
			return &r.Photos[i]
		}
	}
	return nil
}

// RemovePhoto drops the photo with the given id from the page
func (r *PhotoQueryResult) RemovePhoto(id int) bool {
	for i := range r.Photos {
		if r.Photos[i].ID == id {
			r.Photos = append(r.Photos[:i], r.Photos[i+1:]...)
			return true
		}
	}
	return false
}

// CommentsQueryResult is the comment list of one photo. It doubles as the
// blob stored in the comment cache.
type CommentsQueryResult struct {
	PhotoID  int       `json:"photo_id"`
	Page     int       `json:"page"`
	Comments []Comment `json:"comments"`
}

// RemoveComment drops the comment with the given id
func (r *CommentsQueryResult) RemoveComment(id int) bool {
	for i := range r.Comments {
		if r.Comments[i].ID == id {
			r.Comments = append(r.Comments[:i], r.Comments[i+1:]...)
			return true
		}
	}
	return false
}

// Vote is the payload of a new_vote event
type Vote struct {
	PhotoID int `json:"photo_id"`
	Votes   int `json:"votes"`
}

// PhotoDeleted is the payload of a photo_deleted event
type PhotoDeleted struct {
	ID int `json:"id"`
}

// CommentDeleted is the payload of a comment_deleted event
type CommentDeleted struct {
	ID      int `json:"id"`
	PhotoID int `json:"photo_id"`
}

// UploadRequest is the body of POST /image
type UploadRequest struct {
	Image       string `json:"image"`
	Description string `json:"description"`
}

// CommentRequest is the body of POST /image/{id}/comment
type CommentRequest struct {
	Message string `json:"message"`
}

// Result is a decoded GET response. Value is nil when NotModified is set.
type Result[T any] struct {
	Value       *T
	ETag        string
	NotModified bool
}

// Decode unmarshals a JSON body into a new T
func Decode[T any](body []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return &v, nil
}

// Encode marshals v as JSON
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
