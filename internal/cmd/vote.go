package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/service"
)

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Like or dislike photos",
}

var likeCmd = &cobra.Command{
	Use:   "like <photo-id>",
	Short: "Like a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photoID, err := parseID("photo-id", args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewVoteService(c).Like(ctx, photoID)
		})
	},
}

var dislikeCmd = &cobra.Command{
	Use:   "dislike <photo-id>",
	Short: "Dislike a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photoID, err := parseID("photo-id", args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewVoteService(c).Dislike(ctx, photoID)
		})
	},
}

func init() {
	voteCmd.AddCommand(likeCmd)
	voteCmd.AddCommand(dislikeCmd)
}
