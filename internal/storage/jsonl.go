package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"walletledger/internal/model"
)

// JsonlLedger stores decoded rows and price points as JSON lines, one file
// per ledger. Writes replace the whole file atomically (tmp + rename) so an
// interrupted run never leaves a truncated ledger behind.
type JsonlLedger struct {
	decodedPath string
	pricePath   string
	mu          sync.Mutex
}

func NewJsonlLedger(decodedPath, pricePath string) *JsonlLedger {
	return &JsonlLedger{decodedPath: decodedPath, pricePath: pricePath}
}

// LoadDecoded reads the decoded ledger; a missing file is an empty ledger.
func (s *JsonlLedger) LoadDecoded(ctx context.Context) (map[string]model.DecodedTransaction, error) {
	rows := make(map[string]model.DecodedTransaction)
	err := readLines(s.decodedPath, func(line []byte) error {
		var row model.DecodedTransaction
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("parse decoded row: %w", err)
		}
		if row.TxHash == "" {
			return nil
		}
		rows[strings.ToLower(row.TxHash)] = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveDecoded rewrites the decoded ledger.
func (s *JsonlLedger) SaveDecoded(ctx context.Context, rows []model.DecodedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]interface{}, len(rows))
	for i := range rows {
		records[i] = rows[i]
	}
	return writeLinesAtomic(s.decodedPath, records)
}

// LoadPrices reads the price ledger; a missing file is an empty ledger.
func (s *JsonlLedger) LoadPrices(ctx context.Context) (map[string]model.PricePoint, error) {
	points := make(map[string]model.PricePoint)
	err := readLines(s.pricePath, func(line []byte) error {
		var point model.PricePoint
		if err := json.Unmarshal(line, &point); err != nil {
			return fmt.Errorf("parse price point: %w", err)
		}
		if point.TxHash == "" {
			return nil
		}
		points[strings.ToLower(point.TxHash)] = point
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// SavePrices rewrites the price ledger.
func (s *JsonlLedger) SavePrices(ctx context.Context, points []model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]interface{}, len(points))
	for i := range points {
		records[i] = points[i]
	}
	return writeLinesAtomic(s.pricePath, records)
}

func readLines(path string, apply func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := apply(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

func writeLinesAtomic(path string, records []interface{}) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp file: %w", err)
	}

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			file.Close()
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			file.Close()
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			file.Close()
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
