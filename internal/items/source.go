package items

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/xuri/excelize/v2"
)

// Source is a fully read data file. Len and Item are stable for its lifetime.
type Source struct {
	path    string
	digest  string
	actions ActionSet
	items   []WorkItem
}

// record mirrors one entry of the data file.
type record struct {
	FilePath          string          `json:"file_path"`
	Name              string          `json:"name"`
	ExternalLink      string          `json:"external_link"`
	Description       string          `json:"description"`
	Collection        string          `json:"collection"`
	Properties        []Trait         `json:"properties"`
	Levels            []Stat          `json:"levels"`
	Stats             []Stat          `json:"stats"`
	UnlockableContent string          `json:"unlockable_content"`
	Sensitive         bool            `json:"sensitive"`
	Supply            *int            `json:"supply"`
	Blockchain        string          `json:"blockchain"`
	Price             json.RawMessage `json:"price"`
	Quantity          *int            `json:"quantity"`
	Duration          string          `json:"duration"`
	SpecificBuyer     string          `json:"specific_buyer"`
	URL               string          `json:"url"`
}

// Open reads path (.json, .csv or .xlsx) and validates every record for
// actions. A record that fails validation becomes an invalid item; only an
// unreadable file is an error.
func Open(path string, actions ActionSet) (*Source, error) {
	if actions.IsZero() {
		return nil, fmt.Errorf("open %s: empty action set", path)
	}

	var (
		raws []json.RawMessage
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		raws, err = readJSON(path)
	case ".csv":
		raws, err = readCSV(path)
	case ".xlsx":
		raws, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("open %s: unsupported file type (want .json, .csv or .xlsx)", path)
	}
	if err != nil {
		return nil, err
	}

	digest, err := digestRecords(raws)
	if err != nil {
		return nil, fmt.Errorf("digest %s: %w", path, err)
	}

	src := &Source{
		path:    path,
		digest:  digest,
		actions: actions,
		items:   make([]WorkItem, len(raws)),
	}
	baseDir := filepath.Dir(path)
	for i, raw := range raws {
		src.items[i] = buildItem(i, raw, actions, baseDir)
	}
	return src, nil
}

// Len returns the number of records in the file.
func (s *Source) Len() int { return len(s.items) }

// Item returns a copy of the item at index i.
func (s *Source) Item(i int) WorkItem { return s.items[i] }

// Path returns the file the source was read from.
func (s *Source) Path() string { return s.path }

// Digest is the sha256 of the canonical JSON form of all records.
func (s *Source) Digest() string { return s.digest }

// Actions returns the action set the records were validated against.
func (s *Source) Actions() ActionSet { return s.actions }

// Invalid returns the items that failed validation.
func (s *Source) Invalid() []WorkItem {
	var out []WorkItem
	for _, it := range s.items {
		if !it.Valid {
			out = append(out, it)
		}
	}
	return out
}

func buildItem(index int, raw json.RawMessage, actions ActionSet, baseDir string) WorkItem {
	invalid := func(err error) WorkItem {
		return WorkItem{Index: index, Problem: err.Error()}
	}

	if err := checkRecord(raw); err != nil {
		return invalid(err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return invalid(fmt.Errorf("decode record: %w", err))
	}

	item := WorkItem{
		Index:             index,
		FilePath:          rec.FilePath,
		Name:              strings.TrimSpace(rec.Name),
		ExternalLink:      rec.ExternalLink,
		Description:       rec.Description,
		Collection:        rec.Collection,
		Properties:        rec.Properties,
		Levels:            rec.Levels,
		Stats:             rec.Stats,
		UnlockableContent: rec.UnlockableContent,
		Sensitive:         rec.Sensitive,
		Supply:            1,
		Quantity:          1,
		Duration:          defaultDuration,
		SpecificBuyer:     strings.TrimSpace(rec.SpecificBuyer),
		URL:               strings.TrimSpace(rec.URL),
	}
	if rec.Supply != nil {
		item.Supply = *rec.Supply
	}
	if rec.Quantity != nil {
		item.Quantity = *rec.Quantity
	}
	if d := strings.TrimSpace(rec.Duration); d != "" {
		item.Duration = d
	}
	if b := strings.TrimSpace(rec.Blockchain); b != "" {
		chain, err := ParseChain(b)
		if err != nil {
			return invalid(err)
		}
		item.Chain = chain
	}
	price, err := priceString(rec.Price)
	if err != nil {
		return invalid(err)
	}
	item.Price = price

	if item.FilePath != "" && !filepath.IsAbs(item.FilePath) {
		item.FilePath = filepath.Join(baseDir, item.FilePath)
	}

	if err := item.Validate(actions); err != nil {
		return invalid(err)
	}
	if actions.Has(StageUpload) {
		if _, err := os.Stat(item.FilePath); err != nil {
			return invalid(fmt.Errorf("file_path: %w", err))
		}
	}
	item.Valid = true
	return item
}

// priceString keeps the price as written so decimal precision survives.
func priceString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("price: %w", err)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("price: %w", err)
	}
	return n.String(), nil
}

func readJSON(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("read %s: file is empty", path)
	}

	var raws []json.RawMessage
	if data[0] == '{' {
		var wrapper struct {
			NFT []json.RawMessage `json:"nft"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if wrapper.NFT == nil {
			return nil, fmt.Errorf("parse %s: object has no \"nft\" array", path)
		}
		raws = wrapper.NFT
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raws, nil
}

func readCSV(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return tableRecords(path, rows)
}

func readXLSX(path string) ([]json.RawMessage, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("read %s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return tableRecords(path, rows)
}

// tableRecords turns a header row plus data rows into JSON records. Cells
// are coerced to the types the record schema expects; a cell that does not
// coerce is passed through as a string so the schema rejects that record
// alone.
func tableRecords(path string, rows [][]string) ([]json.RawMessage, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse %s: missing header row", path)
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var out []json.RawMessage
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(map[string]any, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			rec[header[i]] = coerceCell(header[i], cell)
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func coerceCell(column, cell string) any {
	switch column {
	case "supply", "quantity":
		if n, err := strconv.Atoi(cell); err == nil {
			return n
		}
	case "sensitive":
		if b, err := strconv.ParseBool(cell); err == nil {
			return b
		}
	case "properties", "levels", "stats":
		var v any
		if err := json.Unmarshal([]byte(cell), &v); err == nil {
			return v
		}
	}
	return cell
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func digestRecords(raws []json.RawMessage) (string, error) {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	data, err := json.Marshal(raws)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
