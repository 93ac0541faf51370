// Package scraper walks a mining-hardware web catalog, collecting product
// cards page by page and then fetching each product's specification table.
package scraper

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pricebot/internal/metrics"
	"github.com/dgallion1/pricebot/internal/tabular"
)

// State is the scraper's progress through a run.
type State int

const (
	Idle State = iota
	PageLoaded
	CardsExtracted
	DetailFetching
	Saved
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PageLoaded:
		return "page_loaded"
	case CardsExtracted:
		return "cards_extracted"
	case DetailFetching:
		return "detail_fetching"
	case Saved:
		return "saved"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	selCard           = "div.catalog-item, div.card, div.product-card, div[data-card-product-id]"
	selCardTitle      = ".card__title"
	selTitleLink      = "h3.card__title a"
	selCategories     = "a.card__categories div"
	selCharacteristic = "div.card__characteristic"
	selCharName       = "div.card__characteristicName"
	selCharValue      = "div.card__characteristicValue"
	selCoins          = ".card__crypto img"
	selPrice          = "a.card__price"
	selImage          = "a img"
	selNext           = `a.pagination__item[rel="next"]:not(.disabled)`
	selSpecTable      = "table.spec-table"
	selSpecRow        = "table.spec-table tr"
	selSpecKey        = "td.specL"
	selSpecValue      = "td.specV"
)

const unknown = "Unknown"

// Card is what a catalog listing shows for one product.
type Card struct {
	Name         string
	URL          string
	Hashrate     string
	Algorithm    string
	Payback      string
	Coins        string
	Price        decimal.Decimal
	HasPrice     bool
	Currency     string
	VATIncluded  bool
	Labels       string
	Availability string
	ImageURL     string
	SoldOut      bool
}

// Options configures a Scraper.
type Options struct {
	URL      string
	Workers  int
	Timeout  time.Duration // per WaitFor
	OutDir   string
	OutName  string // file stem for the saved catalog
	MaxPages int
}

// Scraper collects the catalog. One Run at a time.
type Scraper struct {
	opts    Options
	factory Factory
	log     *slog.Logger

	mu    sync.Mutex
	state State
}

func New(opts Options, factory Factory, log *slog.Logger) *Scraper {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.OutName == "" {
		opts.OutName = "uminers_catalog"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 200
	}
	return &Scraper{opts: opts, factory: factory, log: log}
}

// Job builds a fresh Scraper for every Run, so repeated runs never share
// state.
type Job struct {
	Options Options
	Factory Factory
	Log     *slog.Logger
}

func (j Job) Run(ctx context.Context) ([]tabular.Product, []string, error) {
	return New(j.Options, j.Factory, j.Log).Run(ctx)
}

// State returns the current state.
func (s *Scraper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scraper) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.Debug("scraper state", "state", st)
}

// Run scrapes the catalog and saves it, returning the products and the
// written files. Detail failures keep the card with unknown fields.
func (s *Scraper) Run(ctx context.Context) ([]tabular.Product, []string, error) {
	s.setState(Idle)
	start := time.Now()

	var cards []Card
	err := WithSession(ctx, s.factory, func(sess Session) error {
		var err error
		cards, err = s.scan(ctx, sess)
		return err
	})
	if err != nil {
		s.setState(Idle)
		return nil, nil, err
	}
	s.log.Info("catalog scanned", "cards", len(cards))

	products := s.details(ctx, cards)
	if len(products) == 0 {
		s.log.Warn("no products to save")
		s.setState(Idle)
		return nil, nil, nil
	}

	xlsxPath, csvPath, err := tabular.SaveProducts(filepath.Join(s.opts.OutDir, s.opts.OutName), products)
	if err != nil {
		return products, nil, fmt.Errorf("save catalog: %w", err)
	}
	s.setState(Saved)
	metrics.ScrapedProducts.Add(float64(len(products)))
	s.log.Info("catalog saved", "products", len(products), "xlsx", xlsxPath, "elapsed", time.Since(start))
	return products, []string{xlsxPath, csvPath}, nil
}

// scan walks the listing pages following the "next" link until it is
// missing, disabled, or the click does not replace the page.
func (s *Scraper) scan(ctx context.Context, sess Session) ([]Card, error) {
	if err := sess.Open(ctx, s.opts.URL); err != nil {
		return nil, err
	}
	s.setState(PageLoaded)

	var cards []Card
	seen := map[string]bool{}
	for page := 1; page <= s.opts.MaxPages; page++ {
		if _, err := sess.WaitFor(ctx, selCardTitle, s.opts.Timeout); err != nil {
			if page == 1 {
				return nil, err
			}
			s.log.Warn("page has no cards", "page", page, "url", sess.URL(), "error", err)
			break
		}
		n := 0
		for _, el := range sess.Find(selCard) {
			card, ok := parseCard(el, sess.URL())
			if !ok || seen[card.URL] {
				continue
			}
			seen[card.URL] = true
			cards = append(cards, card)
			n++
		}
		s.setState(CardsExtracted)
		s.log.Info("page scanned", "page", page, "cards", n)

		next := sess.Find(selNext)
		if len(next) == 0 {
			break
		}
		if err := sess.Click(ctx, next[0]); err != nil {
			s.log.Warn("pagination stopped", "page", page, "error", err)
			break
		}
		if !sess.Stale(next[0]) {
			break
		}
		s.setState(PageLoaded)
	}
	return cards, nil
}

func (s *Scraper) details(ctx context.Context, cards []Card) []tabular.Product {
	s.setState(DetailFetching)

	type indexed struct {
		i int
		p tabular.Product
	}
	var (
		mu      sync.Mutex
		results []indexed
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, card := range cards {
		if card.URL == "" {
			continue
		}
		g.Go(func() error {
			specs, err := s.specs(gctx, card.URL)
			if err != nil {
				s.log.Warn("detail fetch failed", "model", card.Name, "url", card.URL, "error", err)
			}
			p := toProduct(card, specs)
			mu.Lock()
			results = append(results, indexed{i, p})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	slices.SortFunc(results, func(a, b indexed) int { return cmp.Compare(a.i, b.i) })
	out := make([]tabular.Product, len(results))
	for i, r := range results {
		out[i] = r.p
	}
	return out
}

func (s *Scraper) specs(ctx context.Context, pageURL string) (map[string]string, error) {
	specs := map[string]string{}
	err := WithSession(ctx, s.factory, func(sess Session) error {
		if err := sess.Open(ctx, pageURL); err != nil {
			return err
		}
		if _, err := sess.WaitFor(ctx, selSpecTable, s.opts.Timeout); err != nil {
			return err
		}
		for _, row := range sess.Find(selSpecRow) {
			k, v := first(row, selSpecKey), first(row, selSpecValue)
			if k == "" {
				continue
			}
			specs[k] = v
		}
		return nil
	})
	return specs, err
}

func first(el Element, selector string) string {
	if found := el.Find(selector); len(found) > 0 {
		return found[0].Text()
	}
	return ""
}

func parseCard(el Element, base string) (Card, bool) {
	links := el.Find(selTitleLink)
	if len(links) == 0 {
		return Card{}, false
	}
	href, _ := links[0].Attr("href")
	c := Card{
		Name: links[0].Text(),
		URL:  resolve(base, href),
	}

	var cats []string
	for _, d := range el.Find(selCategories) {
		cats = append(cats, d.Text())
	}
	c.Labels, c.Availability = categories(cats)

	for _, blk := range el.Find(selCharacteristic) {
		k := strings.ToLower(first(blk, selCharName))
		v := first(blk, selCharValue)
		switch {
		case strings.HasPrefix(k, "hashrate"):
			c.Hashrate = v
		case strings.HasPrefix(k, "algorithm"):
			c.Algorithm = v
		case strings.HasPrefix(k, "payback"):
			c.Payback = v
		}
	}

	var coins []string
	for _, img := range el.Find(selCoins) {
		if alt, ok := img.Attr("alt"); ok {
			coins = append(coins, alt)
		}
	}
	c.Coins = strings.Join(coins, ", ")

	priceText := first(el, selPrice)
	c.Price, c.Currency, c.HasPrice = ParsePrice(priceText)
	c.VATIncluded = strings.Contains(priceText, "(с НДС)")

	if imgs := el.Find(selImage); len(imgs) > 0 {
		if src, ok := imgs[0].Attr("src"); ok {
			c.ImageURL = resolve(base, src)
		}
	}
	c.SoldOut = el.HasClass("-soldout")
	return c, true
}

// categories splits card badges into special labels and the availability
// line.
func categories(cats []string) (labels, availability string) {
	var ls []string
	availability = unknown
	found := false
	for _, c := range cats {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "special") || strings.Contains(lc, "new") {
			ls = append(ls, c)
		}
		if !found && (strings.Contains(lc, "stock") || strings.Contains(lc, "sold") || strings.Contains(lc, "пре-заказ")) {
			availability = c
			found = true
		}
	}
	return strings.Join(ls, "; "), availability
}

var (
	currencyPat = regexp.MustCompile(`(?i)(USDT|USD|\$|€|₽)`)
	priceNumPat = regexp.MustCompile(`\d[\d ]*(?:[.,]\d+)?`)
)

// ParsePrice reads an amount and currency from text like "6 399 USDT".
// Currency is "N/A" when none is shown.
func ParsePrice(text string) (amount decimal.Decimal, currency string, ok bool) {
	currency = "N/A"
	if m := currencyPat.FindString(text); m != "" {
		currency = strings.ToUpper(m)
	}
	clean := strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(text)
	num := priceNumPat.FindString(clean)
	if num == "" {
		return decimal.Zero, currency, false
	}
	num = strings.ReplaceAll(strings.TrimSpace(num), " ", "")
	num = strings.Replace(num, ",", ".", 1)
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, currency, false
	}
	return d, currency, true
}

func toProduct(c Card, specs map[string]string) tabular.Product {
	hashrate := c.Hashrate
	if hashrate == "" {
		hashrate = cmp.Or(specs["Хэшрейт"], unknown)
	}
	price := "N/A"
	if c.HasPrice {
		price = c.Price.String()
	}
	vat := "без НДС"
	if c.VATIncluded {
		vat = "с НДС"
	}
	warehouse := ""
	if i := strings.LastIndex(c.Availability, ","); i >= 0 {
		warehouse = strings.TrimSpace(c.Availability[i+1:])
	}
	return tabular.Product{
		Model:        c.Name,
		Algorithm:    c.Algorithm,
		Hashrate:     hashrate,
		Power:        pickPower(specs),
		Price:        price,
		Currency:     c.Currency,
		VAT:          vat,
		Availability: c.Availability,
		Warehouse:    warehouse,
		Labels:       c.Labels,
		Coins:        c.Coins,
	}
}

// pickPower finds the power draw whatever the page language. Keys are
// checked in sorted order so the result does not depend on map order.
func pickPower(specs map[string]string) string {
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "power") || strings.HasPrefix(lk, "мощность") {
			return specs[k]
		}
	}
	return unknown
}

func resolve(base, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
