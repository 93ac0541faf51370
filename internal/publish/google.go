package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/dgallion1/pricebot/internal/retry"
)

const (
	folderMime      = "application/vnd.google-apps.folder"
	spreadsheetMime = "application/vnd.google-apps.spreadsheet"
)

// New builds a publisher backed by the Drive and Sheets APIs, authorized
// with a service-account key file.
func New(ctx context.Context, opts Options, log *slog.Logger) (*Sheets, error) {
	if opts.CredentialsFile == "" {
		return nil, errors.New("google credentials file is not configured")
	}
	creds := option.WithCredentialsFile(opts.CredentialsFile)
	scopes := option.WithScopes(drive.DriveScope, sheets.SpreadsheetsScope)

	dsvc, err := drive.NewService(ctx, creds, scopes)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	ssvc, err := sheets.NewService(ctx, creds, scopes)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return NewSheets(&googleDrive{svc: dsvc}, &googleSheets{svc: ssvc}, opts.Folder, opts.Emails, log), nil
}

// call retries rate-limited and server-side failures.
func call(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, 0, func(ctx context.Context) error {
		return transient(fn(), time.Now())
	})
}

// transient marks 429 and 5xx API errors retryable, honoring the
// Retry-After header when Google sends one.
func transient(err error, now time.Time) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || (gerr.Code != http.StatusTooManyRequests && gerr.Code < 500) {
		return err
	}
	return retry.TransientAfter(err, retry.ParseAfter(gerr.Header.Get("Retry-After"), now))
}

type googleDrive struct {
	svc *drive.Service
}

func (d *googleDrive) FolderExists(ctx context.Context, id string) (bool, error) {
	err := call(ctx, func() error {
		_, err := d.svc.Files.Get(id).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
		return err
	})
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return false, nil
	}
	return err == nil, err
}

func (d *googleDrive) FindFolder(ctx context.Context, name string) (string, bool, error) {
	q := fmt.Sprintf("mimeType='%s' and name='%s' and trashed=false", folderMime, strings.ReplaceAll(name, "'", `\'`))
	var list *drive.FileList
	err := call(ctx, func() error {
		var err error
		list, err = d.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", false, err
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	return list.Files[0].Id, true, nil
}

func (d *googleDrive) CreateFolder(ctx context.Context, name string) (string, error) {
	return d.create(ctx, &drive.File{Name: name, MimeType: folderMime})
}

func (d *googleDrive) CreateSpreadsheet(ctx context.Context, title, parent string) (string, error) {
	f := &drive.File{Name: title, MimeType: spreadsheetMime}
	if parent != "" {
		f.Parents = []string{parent}
	}
	return d.create(ctx, f)
}

func (d *googleDrive) create(ctx context.Context, f *drive.File) (string, error) {
	var created *drive.File
	err := call(ctx, func() error {
		var err error
		created, err = d.svc.Files.Create(f).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (d *googleDrive) Share(ctx context.Context, fileID, email string) error {
	perm := &drive.Permission{Type: "user", Role: "writer", EmailAddress: email}
	return call(ctx, func() error {
		_, err := d.svc.Permissions.Create(fileID, perm).SendNotificationEmail(false).SupportsAllDrives(true).Context(ctx).Do()
		return err
	})
}

type googleSheets struct {
	svc *sheets.Service
}

func (g *googleSheets) FirstSheet(ctx context.Context, spreadsheetID string) (int64, error) {
	var ss *sheets.Spreadsheet
	err := call(ctx, func() error {
		var err error
		ss, err = g.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return 0, errors.New("spreadsheet has no sheets")
	}
	return ss.Sheets[0].Properties.SheetId, nil
}

func (g *googleSheets) RenameSheet(ctx context.Context, spreadsheetID string, sheetID int64, title string) error {
	return g.batch(ctx, spreadsheetID, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				Title:           title,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "title",
		},
	})
}

func (g *googleSheets) AddSheet(ctx context.Context, spreadsheetID, title string, rows, cols int) error {
	return g.batch(ctx, spreadsheetID, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				Title: title,
				GridProperties: &sheets.GridProperties{
					RowCount:    int64(rows),
					ColumnCount: int64(cols),
				},
			},
		},
	})
}

func (g *googleSheets) batch(ctx context.Context, spreadsheetID string, req *sheets.Request) error {
	body := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{req}}
	return call(ctx, func() error {
		_, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, body).Context(ctx).Do()
		return err
	})
}

func (g *googleSheets) WriteValues(ctx context.Context, spreadsheetID, sheet string, values [][]string) error {
	rows := make([][]interface{}, len(values))
	for i, r := range values {
		row := make([]interface{}, len(r))
		for j, v := range r {
			row[j] = v
		}
		rows[i] = row
	}
	vr := &sheets.ValueRange{Values: rows}
	return call(ctx, func() error {
		_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, A1(sheet), vr).ValueInputOption("RAW").Context(ctx).Do()
		return err
	})
}

// A1 is the top-left cell reference of a worksheet, quoted.
func A1(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!A1"
}
