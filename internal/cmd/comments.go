package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/service"
)

var deleteCommentYes bool

var commentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Manage comments on photos",
	Long:  "View, post and delete comments",
}

var viewCommentsCmd = &cobra.Command{
	Use:   "view <photo-id>",
	Short: "View comments on a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photoID, err := parseID("photo-id", args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewCommentService(c).ViewComments(ctx, photoID)
		})
	},
}

var postCommentCmd = &cobra.Command{
	Use:   "post <photo-id> [message]",
	Short: "Comment on a photo",
	Long:  "Post a comment. Without a message you are prompted for one.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		photoID, err := parseID("photo-id", args[0])
		if err != nil {
			return err
		}
		message := strings.Join(args[1:], " ")
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewCommentService(c).PostComment(ctx, photoID, message)
		})
	},
}

var deleteCommentCmd = &cobra.Command{
	Use:   "delete <photo-id> <comment-id>",
	Short: "Delete one of your comments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		photoID, err := parseID("photo-id", args[0])
		if err != nil {
			return err
		}
		commentID, err := parseID("comment-id", args[1])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewCommentService(c).DeleteComment(ctx, photoID, commentID, deleteCommentYes)
		})
	},
}

func init() {
	deleteCommentCmd.Flags().BoolVarP(&deleteCommentYes, "yes", "y", false, "Skip confirmation")

	commentsCmd.AddCommand(viewCommentsCmd)
	commentsCmd.AddCommand(postCommentCmd)
	commentsCmd.AddCommand(deleteCommentCmd)
}
