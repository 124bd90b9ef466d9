package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deskmate/internal/notify"
	"deskmate/internal/store"
	"deskmate/internal/usage"
	"deskmate/internal/watch"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
	Long: `Manage the documents the assistant answers from.

Available subcommands:
  list     - List uploaded documents
  get      - Show one document
  upload   - Upload a local file
  rm       - Delete a document
  download - Download a document's content
  uploads  - Show the local upload journal
  watch    - Watch a directory and upload new files`,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE:  runDocsList,
}

var docsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsGet,
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsUpload,
}

var docsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsRm,
}

var docsDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a document's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDownload,
}

var docsUploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Show the local upload journal",
	RunE:  runDocsUploads,
}

var docsWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and upload new files",
	Long: `Watch a directory and upload files as they appear or change.

Files settle through a debounce window before uploading, and content that
was already sent (by checksum) is skipped. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDocsWatch,
}

var (
	downloadOut string
)

func init() {
	docsDownloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "output file (default: stdout)")

	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsGetCmd)
	docsCmd.AddCommand(docsUploadCmd)
	docsCmd.AddCommand(docsRmCmd)
	docsCmd.AddCommand(docsDownloadCmd)
	docsCmd.AddCommand(docsUploadsCmd)
	docsCmd.AddCommand(docsWatchCmd)
}

func runDocsList(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	t := tracker()
	docs, err := client.ListDocuments(context.Background())
	record(t, usage.Event{Operation: "docs", Failed: err != nil})
	if err != nil {
		return err
	}
	zlog().Debug("listed documents", zap.Int("count", len(docs)))

	if len(docs) == 0 {
		fmt.Println("no documents uploaded")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%-36s  %-10s  %8d  %s\n", d.ID, d.Status, d.Size, d.Filename)
	}
	return nil
}

func runDocsGet(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	t := tracker()
	doc, err := client.GetDocument(context.Background(), args[0])
	record(t, usage.Event{Operation: "docs", Failed: err != nil})
	if err != nil {
		return err
	}

	fmt.Printf("id:       %s\n", doc.ID)
	fmt.Printf("filename: %s\n", doc.Filename)
	fmt.Printf("type:     %s\n", doc.ContentType)
	fmt.Printf("size:     %d bytes\n", doc.Size)
	fmt.Printf("status:   %s\n", doc.Status)
	fmt.Printf("uploaded: %s\n", doc.UploadedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runDocsUpload(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	path := args[0]
	t := tracker()

	var lastPct int64 = -1
	doc, err := client.UploadDocument(context.Background(), path, func(sent, total int64) {
		if total == 0 {
			return
		}
		pct := sent * 100 / total
		if pct != lastPct {
			lastPct = pct
			fmt.Fprintf(os.Stderr, "\ruploading %s: %d%%", filepath.Base(path), pct)
		}
	})
	fmt.Fprintln(os.Stderr)

	var size int64
	if doc != nil {
		size = doc.Size
	}
	record(t, usage.Event{Operation: "upload", Failed: err != nil, BytesUploaded: size})
	if err != nil {
		zlog().Warn("upload failed", zap.String("path", path), zap.Error(err))
		return err
	}
	zlog().Info("document uploaded",
		zap.String("id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int64("size", doc.Size))

	fmt.Printf("uploaded %s as %s (status %s)\n", doc.Filename, doc.ID, doc.Status)
	return nil
}

func runDocsRm(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	t := tracker()
	err = client.DeleteDocument(context.Background(), args[0])
	record(t, usage.Event{Operation: "docs", Failed: err != nil})
	if err != nil {
		return err
	}
	zlog().Info("document deleted", zap.String("id", args[0]))

	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func runDocsDownload(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}

	out := os.Stdout
	if downloadOut != "" {
		f, err := os.Create(downloadOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	t := tracker()
	err = client.DownloadDocument(context.Background(), args[0], out)
	record(t, usage.Event{Operation: "docs", Failed: err != nil})
	if err != nil {
		return err
	}

	if downloadOut != "" {
		fmt.Fprintf(os.Stderr, "saved to %s\n", downloadOut)
	}
	return nil
}

func runDocsUploads(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	records, err := cache.Uploads()
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no uploads journaled")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  %-36s  %s\n", r.UploadedAt.Format("2006-01-02 15:04"), r.DocumentID, r.Path)
	}
	return nil
}

func runDocsWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.Watch.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no directory given and watch.dir not configured")
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}

	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	sink := notify.NewConsoleSink(os.Stderr)
	w, err := watch.New(watch.Config{
		Dir:           dir,
		Extensions:    cfg.Watch.Extensions,
		Debounce:      cfg.GetWatchDebounce(),
		MaxFileSizeMB: cfg.Watch.MaxFileSizeMB,
	}, client, cache, sink)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		return err
	}
	zlog().Info("watch started",
		zap.String("dir", dir),
		zap.Strings("extensions", cfg.Watch.Extensions))

	fmt.Printf("watching %s, press ctrl-c to stop\n", dir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog().Info("received shutdown signal")

	w.Stop()

	s := w.Stats()
	zlog().Info("watch stopped",
		zap.Int("uploaded", s.Uploaded),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed))
	record(tracker(), usage.Event{Operation: "watch", Failed: s.Failed > 0})

	fmt.Printf("\nuploaded %d, skipped %d, failed %d\n", s.Uploaded, s.Skipped, s.Failed)
	return nil
}

// openCache opens the workspace cache database.
func openCache() (*store.LocalStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Cache.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspaceDir(), path)
	}
	return store.NewLocalStore(path)
}
