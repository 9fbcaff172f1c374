package publish

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"reel/internal/config"
	"reel/internal/logging"
)

// GDrive uploads artifacts into a Google Drive folder.
type GDrive struct {
	srv      *drive.Service
	folderID string
	logger   *slog.Logger
}

var _ Publisher = (*GDrive)(nil)

// NewGDrive wraps an authenticated Drive service.
func NewGDrive(srv *drive.Service, folderID string, logger *slog.Logger) *GDrive {
	return &GDrive{srv: srv, folderID: folderID, logger: logging.NewComponentLogger(logger, "publish")}
}

// NewGDriveFromConfig authenticates with the stored refresh token.
func NewGDriveFromConfig(ctx context.Context, cfg config.Publish, logger *slog.Logger) (*GDrive, error) {
	if cfg.GDriveClientID == "" || cfg.GDriveClientSecret == "" || cfg.GDriveRefreshToken == "" {
		return nil, fmt.Errorf("gdrive: client id, client secret and refresh token are required")
	}
	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
	tok := &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gdrive: create service: %w", err)
	}
	return NewGDrive(srv, cfg.GDriveFolderID, logger), nil
}

func (g *GDrive) Provider() string { return "gdrive" }

// Publish uploads a single file. Image sequences are not uploaded to Drive.
func (g *GDrive) Publish(ctx context.Context, path string) (Receipt, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Receipt{}, fmt.Errorf("gdrive: stat artifact: %w", err)
	}
	if info.IsDir() {
		return Receipt{}, fmt.Errorf("gdrive: %s is a directory; image sequences are not uploaded", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Receipt{}, err
	}
	defer f.Close()

	file := &drive.File{Name: filepath.Base(path)}
	if g.folderID != "" {
		file.Parents = []string{g.folderID}
	}
	call := g.srv.Files.Create(file).SupportsAllDrives(true)
	if contentType := ContentType(path); contentType != "" {
		call = call.Media(f, googleapi.ContentType(contentType))
	} else {
		call = call.Media(f)
	}
	created, err := call.Context(ctx).Do()
	if err != nil {
		return Receipt{}, fmt.Errorf("gdrive upload failed: %w", err)
	}
	logging.WithContext(ctx, g.logger).Debug("uploaded artifact",
		logging.String("file_id", created.Id),
		logging.Int64("size", info.Size()),
	)
	return Receipt{Provider: g.Provider(), Location: created.Id, Size: info.Size()}, nil
}

// ContentType maps render extensions to MIME types.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".gif":
		return "image/gif"
	}
	return mime.TypeByExtension(filepath.Ext(path))
}
