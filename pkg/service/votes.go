package service

import (
	"context"
	"fmt"

	"github.com/zfogg/photostream/cli/pkg/formatter"
	"github.com/zfogg/photostream/cli/pkg/photostream"
)

// VoteService likes and dislikes photos
type VoteService struct {
	client *photostream.Client
}

// NewVoteService creates a vote service on c
func NewVoteService(c *photostream.Client) *VoteService {
	return &VoteService{client: c}
}

// Like votes a photo up
func (vs *VoteService) Like(ctx context.Context, photoID int) error {
	if err := vs.client.LikePhoto(ctx, photoID); err != nil {
		return fmt.Errorf("failed to like photo %d: %w", photoID, err)
	}
	formatter.PrintSuccess("Liked photo %d", photoID)
	return nil
}

// Dislike votes a photo down
func (vs *VoteService) Dislike(ctx context.Context, photoID int) error {
	if err := vs.client.DislikePhoto(ctx, photoID); err != nil {
		return fmt.Errorf("failed to dislike photo %d: %w", photoID, err)
	}
	formatter.PrintSuccess("Disliked photo %d", photoID)
	return nil
}
