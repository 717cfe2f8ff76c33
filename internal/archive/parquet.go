package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// parquetReadSize is the row buffer of the generic reader.
const parquetReadSize = 4096

// ReadParquet reads a sample file in the flat SampleRow layout.
func ReadParquet(path string) (*Result, error) {
	fileName := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: parquet open: %w", fileName, err)
	}

	reader := parquet.NewGenericReader[SampleRow](pf)
	defer reader.Close()

	rows := make([]SampleRow, 0, pf.NumRows())
	buf := make([]SampleRow, parquetReadSize)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%s: parquet read: %w", fileName, err)
		}
		if n == 0 {
			break
		}
	}

	return &Result{
		Sweeps: GroupRows(rows),
		Rows:   len(rows),
		Bytes:  uint64(info.Size()),
	}, nil
}

// WriteParquet writes rows in the flat SampleRow layout.
func WriteParquet(path string, rows []SampleRow) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("%s: parquet write: %w", filepath.Base(path), err)
	}
	return nil
}
