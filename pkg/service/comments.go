package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zfogg/photostream/cli/pkg/api"
	clierrors "github.com/zfogg/photostream/cli/pkg/errors"
	"github.com/zfogg/photostream/cli/pkg/formatter"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/prompter"
)

// maxCommentLines bounds the interactive comment prompt
const maxCommentLines = 20

// CommentService provides operations for managing comments
type CommentService struct {
	client *photostream.Client
}

// NewCommentService creates a new comment service
func NewCommentService(c *photostream.Client) *CommentService {
	return &CommentService{client: c}
}

// ViewComments prints the comments of a photo
func (cs *CommentService) ViewComments(ctx context.Context, photoID int) error {
	result, err := cs.client.LoadComments(ctx, photoID)
	if err != nil {
		return fmt.Errorf("failed to load comments: %w", err)
	}

	if len(result.Comments) == 0 && output.GetOutputFormat() != output.FormatJSON {
		formatter.PrintInfo("No comments on photo %d", photoID)
		return nil
	}
	title := fmt.Sprintf("Photo %d, %s", photoID, formatter.Count(len(result.Comments), "comment", "comments"))
	return output.PrintList(title, result, formatter.CommentHeaders, formatter.CommentRows(result.Comments))
}

// PostComment adds a comment to a photo. An empty message is prompted for.
func (cs *CommentService) PostComment(ctx context.Context, photoID int, message string) error {
	if strings.TrimSpace(message) == "" {
		var err error
		message, err = prompter.PromptMultilineString("Comment", maxCommentLines)
		if err != nil {
			return err
		}
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return clierrors.ValidationError("message", "comment cannot be empty")
	}
	if utf8.RuneCountInString(message) > api.MaxCommentLength {
		return clierrors.ValidationError("message",
			fmt.Sprintf("comment exceeds %d character limit", api.MaxCommentLength))
	}

	comment, err := cs.client.PostComment(ctx, photoID, message)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	formatter.PrintSuccess("Comment posted")
	formatter.PrintKeyValue(map[string]interface{}{
		"Comment ID": comment.ID,
		"Photo ID":   comment.PhotoID,
		"Message":    formatter.Truncate(comment.Message, 50),
	})
	return nil
}

// DeleteComment deletes an own comment, asking first unless yes is set
func (cs *CommentService) DeleteComment(ctx context.Context, photoID, commentID int, yes bool) error {
	if !yes {
		ok, err := prompter.PromptConfirm(fmt.Sprintf("Delete comment %d?", commentID))
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintInfo("Cancelled")
			return nil
		}
	}

	if err := cs.client.DeleteComment(ctx, photoID, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	formatter.PrintSuccess("Comment %d deleted", commentID)
	return nil
}
