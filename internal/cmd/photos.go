package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/config"
	clierrors "github.com/zfogg/photostream/cli/pkg/errors"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/service"
)

var (
	pageSize      int
	searchPage    int
	description   string
	deleteYes     bool
	thumbnailOut  string
	thumbnailSize int
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Browse and manage photos",
	Long:  "List, search, upload, show and delete photos in the stream",
}

var listPhotosCmd = &cobra.Command{
	Use:   "list",
	Short: "List the newest photos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("page-size") {
			if pageSize < 1 {
				return clierrors.ValidationError("page-size", "must be positive")
			}
			config.Set("api.page_size", pageSize)
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewPhotoService(c).ListPhotos(ctx)
		})
	},
}

var morePhotosCmd = &cobra.Command{
	Use:   "more <page>",
	Short: "List a later page of the stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return clierrors.ValidationError("page", "must be a number")
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewPhotoService(c).MorePhotos(ctx, page)
		})
	},
}

var searchPhotosCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search photo descriptions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewPhotoService(c).SearchPhotos(ctx, query, searchPage)
		})
	},
}

var uploadPhotoCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a photo",
	Long:  "Upload an image file. Without --description you are prompted for one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewPhotoService(c).UploadPhoto(ctx, args[0], description)
		})
	},
}

var deletePhotoCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your photos",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("id", args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewPhotoService(c).DeletePhoto(ctx, id, deleteYes)
		})
	},
}

var showPhotoCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a photo from the stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("id", args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewPhotoService(c).ShowPhoto(ctx, id, thumbnailOut, thumbnailSize)
		})
	},
}

func init() {
	listPhotosCmd.Flags().IntVar(&pageSize, "page-size", photostream.DefaultPageSize, "Photos per page")
	searchPhotosCmd.Flags().IntVar(&searchPage, "page", 1, "Result page")
	uploadPhotoCmd.Flags().StringVarP(&description, "description", "d", "", "Photo description")
	deletePhotoCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip confirmation")
	showPhotoCmd.Flags().StringVar(&thumbnailOut, "thumbnail", "", "Write a JPEG thumbnail to this path")
	showPhotoCmd.Flags().IntVar(&thumbnailSize, "size", service.DefaultThumbnailSize, "Thumbnail size in pixels")

	photosCmd.AddCommand(listPhotosCmd)
	photosCmd.AddCommand(morePhotosCmd)
	photosCmd.AddCommand(searchPhotosCmd)
	photosCmd.AddCommand(uploadPhotoCmd)
	photosCmd.AddCommand(deletePhotoCmd)
	photosCmd.AddCommand(showPhotoCmd)
}
