package tabular

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// Product is one flat catalog record, produced by the scraper and by the
// PDF pipeline when a vendor table maps onto it.
type Product struct {
	Model        string `csv:"Модель"`
	Algorithm    string `csv:"Алгоритм"`
	Hashrate     string `csv:"Хэшрейт"`
	Power        string `csv:"Потребление"`
	Price        string `csv:"Цена"`
	Currency     string `csv:"Валюта"`
	VAT          string `csv:"НДС"`
	Availability string `csv:"Доступность"`
	Warehouse    string `csv:"Склад"`
	Labels       string `csv:"Спец-метка"`
	Coins        string `csv:"Coins"`
}

// ProductColumns is the header used for product exports.
var ProductColumns = []string{
	"Модель", "Алгоритм", "Хэшрейт", "Потребление", "Цена", "Валюта",
	"НДС", "Доступность", "Склад", "Спец-метка", "Coins",
}

func (p Product) row() []string {
	return []string{
		p.Model, p.Algorithm, p.Hashrate, p.Power, p.Price, p.Currency,
		p.VAT, p.Availability, p.Warehouse, p.Labels, p.Coins,
	}
}

// ProductTable lays products out under ProductColumns.
func ProductTable(products []Product) Table {
	t := New(ProductColumns...)
	for _, p := range products {
		t.Append(p.row())
	}
	return t
}

// WriteProductsCSV marshals products with their csv tags as the header.
func WriteProductsCSV(w io.Writer, products []Product) error {
	return gocsv.Marshal(&products, w)
}

// ReadProductsCSV is the inverse of WriteProductsCSV.
func ReadProductsCSV(r io.Reader) ([]Product, error) {
	var products []Product
	if err := gocsv.Unmarshal(r, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// SaveProducts writes products next to each other as <base>.xlsx and <base>.csv.
func SaveProducts(base string, products []Product) (xlsxPath, csvPath string, err error) {
	xlsxPath = base + ".xlsx"
	csvPath = base + ".csv"
	if err := WriteXLSX(xlsxPath, filepath.Base(base), ProductTable(products)); err != nil {
		return "", "", err
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", csvPath, err)
	}
	defer f.Close()
	if err := WriteProductsCSV(f, products); err != nil {
		return "", "", fmt.Errorf("write %s: %w", csvPath, err)
	}
	return xlsxPath, csvPath, nil
}
