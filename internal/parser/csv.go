package parser

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// csvRows reads a delimited price list exported by a vendor.
func csvRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := gocsv.LazyCSVReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}
