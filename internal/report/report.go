// Package report persists funnel records as a CSV or XLSX table.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

// ErrWrite marks a report that could not be persisted.
var ErrWrite = errors.New("report write failed")

// Encoder renders records, header first, in models.Columns order.
type Encoder interface {
	Encode(w io.Writer, recs []models.FunnelRecord) error
}

type CSVEncoder struct{}

func (CSVEncoder) Encode(w io.Writer, recs []models.FunnelRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.Columns); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSXEncoder writes a single sheet. Transaction values are numeric cells,
// everything else is text.
type XLSXEncoder struct {
	Sheet string
}

func (e XLSXEncoder) Encode(w io.Writer, recs []models.FunnelRecord) error {
	sheet := e.Sheet
	if sheet == "" {
		sheet = "funnel"
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	header := make([]any, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range recs {
		row := make([]any, 0, len(models.Columns))
		for j, v := range r.Row() {
			if j == 5 && r.TransactionValue != nil {
				row = append(row, *r.TransactionValue)
				continue
			}
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// ForPath picks the encoder from the file extension; CSV unless .xlsx.
func ForPath(path string) Encoder {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return XLSXEncoder{}
	}
	return CSVEncoder{}
}

// WriteFile replaces path atomically: records go to a temp file in the same
// directory which is renamed over path once complete. An empty record set
// still produces a header-only report.
func WriteFile(path string, recs []models.FunnelRecord) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	name := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	if err := ForPath(path).Encode(tmp, recs); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}

// Recover saves records that could not be written to their report. It tries
// a CSV in dir (the system temp dir when empty) and returns its path; if that
// fails too every row is logged.
func Recover(recs []models.FunnelRecord, dir string, log *slog.Logger) string {
	f, err := os.CreateTemp(dir, "funnel_report_recovery_*.csv")
	if err == nil {
		if err = (CSVEncoder{}).Encode(f, recs); err == nil {
			err = f.Close()
		} else {
			f.Close()
		}
		if err == nil {
			log.Warn("records dumped for recovery", slog.String("path", f.Name()), slog.Int("records", len(recs)))
			return f.Name()
		}
		os.Remove(f.Name())
	}
	log.Error("recovery dump failed, logging rows", slog.Any("err", err), slog.Int("records", len(recs)))
	for _, r := range recs {
		log.Warn("unwritten record", slog.String("row", strings.Join(r.Row(), ",")))
	}
	return ""
}
