// Package publish uploads extracted price lists to Google Sheets, one
// worksheet per xlsx file, inside a shared Drive folder.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/dgallion1/pricebot/internal/tabular"
)

// TitleLayout formats spreadsheet titles.
const TitleLayout = "2006_01_02_15:04"

const spreadsheetURL = "https://docs.google.com/spreadsheets/d/"

// ErrFolderNotFound is returned when a configured folder id does not exist.
var ErrFolderNotFound = errors.New("drive folder not found")

// IsQuotaExceeded reports whether err is Drive refusing to share because
// the sharing quota is used up.
func IsQuotaExceeded(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != 403 {
		return false
	}
	text := strings.ToLower(gerr.Message + " " + gerr.Body)
	for _, item := range gerr.Errors {
		text += " " + strings.ToLower(item.Reason+" "+item.Message)
	}
	return strings.Contains(text, "sharing quota") || strings.Contains(text, "sharingratelimitexceeded")
}

// looksLikeID tells folder ids (25-60 chars, no spaces or slashes) from
// folder names.
func looksLikeID(folder string) bool {
	return len(folder) > 20 && !strings.Contains(folder, " ") && !strings.Contains(folder, "/")
}

// Drive is the file-level API the publisher needs.
type Drive interface {
	FolderExists(ctx context.Context, id string) (bool, error)
	FindFolder(ctx context.Context, name string) (string, bool, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	CreateSpreadsheet(ctx context.Context, title, parent string) (string, error)
	Share(ctx context.Context, fileID, email string) error
}

// Spreadsheets is the worksheet-level API the publisher needs.
type Spreadsheets interface {
	FirstSheet(ctx context.Context, spreadsheetID string) (int64, error)
	RenameSheet(ctx context.Context, spreadsheetID string, sheetID int64, title string) error
	AddSheet(ctx context.Context, spreadsheetID, title string, rows, cols int) error
	WriteValues(ctx context.Context, spreadsheetID, sheet string, values [][]string) error
}

// Options configure a Sheets publisher.
type Options struct {
	CredentialsFile string
	Folder          string
	Emails          []string
}

// Sheets publishes xlsx files as one spreadsheet per run.
type Sheets struct {
	drive  Drive
	sheets Spreadsheets
	folder string
	emails []string
	log    *slog.Logger
	now    func() time.Time
}

// NewSheets builds a publisher over the given APIs. Use New for the Google
// services.
func NewSheets(drive Drive, sheets Spreadsheets, folder string, emails []string, log *slog.Logger) *Sheets {
	seen := make(map[string]bool, len(emails))
	var unique []string
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" && !seen[e] {
			seen[e] = true
			unique = append(unique, e)
		}
	}
	return &Sheets{
		drive:  drive,
		sheets: sheets,
		folder: folder,
		emails: unique,
		log:    log,
		now:    time.Now,
	}
}

// EnsureFolder resolves the target folder, creating it by name if needed.
// An empty folder means the Drive root and yields "".
func (s *Sheets) EnsureFolder(ctx context.Context) (string, error) {
	if s.folder == "" {
		return "", nil
	}
	if looksLikeID(s.folder) {
		ok, err := s.drive.FolderExists(ctx, s.folder)
		if err != nil {
			return "", fmt.Errorf("check folder: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrFolderNotFound, s.folder)
		}
		return s.folder, nil
	}
	id, ok, err := s.drive.FindFolder(ctx, s.folder)
	if err != nil {
		return "", fmt.Errorf("find folder: %w", err)
	}
	if ok {
		return id, nil
	}
	id, err = s.drive.CreateFolder(ctx, s.folder)
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	s.log.Info("drive folder created", "name", s.folder, "id", id)
	return id, nil
}

// Publish creates a spreadsheet with one worksheet per file and returns
// its link.
func (s *Sheets) Publish(ctx context.Context, files []string) (string, error) {
	if len(files) == 0 {
		return "", errors.New("nothing to publish")
	}
	folderID, err := s.EnsureFolder(ctx)
	if err != nil {
		return "", err
	}
	if folderID != "" {
		if err := s.share(ctx, folderID); err != nil {
			return "", err
		}
	}

	title := s.now().Format(TitleLayout)
	id, err := s.drive.CreateSpreadsheet(ctx, title, folderID)
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	if err := s.share(ctx, id); err != nil {
		return "", err
	}
	link := spreadsheetURL + id
	log := s.log.With("spreadsheet", id)
	log.Info("spreadsheet created", "title", title)

	first, err := s.sheets.FirstSheet(ctx, id)
	if err != nil {
		return "", fmt.Errorf("read spreadsheet: %w", err)
	}
	for i, path := range files {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		name := tabular.SheetTitle(stem)
		t, err := firstTable(path)
		if err != nil {
			return link, err
		}
		if i == 0 {
			err = s.sheets.RenameSheet(ctx, id, first, name)
		} else {
			err = s.sheets.AddSheet(ctx, id, name, t.Len()+10, t.Width()+5)
		}
		if err != nil {
			return link, fmt.Errorf("worksheet %s: %w", name, err)
		}
		values := append([][]string{t.Columns}, t.Rows...)
		if err := s.sheets.WriteValues(ctx, id, name, values); err != nil {
			return link, fmt.Errorf("write %s: %w", name, err)
		}
		log.Info("worksheet written", "sheet", name, "rows", t.Len())
	}
	return link, nil
}

func (s *Sheets) share(ctx context.Context, fileID string) error {
	for _, email := range s.emails {
		if err := s.drive.Share(ctx, fileID, email); err != nil {
			return fmt.Errorf("share %s with %s: %w", fileID, email, err)
		}
	}
	return nil
}

func firstTable(path string) (tabular.Table, error) {
	sheets, err := tabular.ReadXLSX(path)
	if err != nil {
		return tabular.Table{}, err
	}
	if len(sheets) == 0 {
		return tabular.Table{}, nil
	}
	return sheets[0].Table, nil
}
