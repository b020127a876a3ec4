package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetRow uses the tag grammar of parquet-go v1.5: logical string types are
// named directly in type=.
type parquetRow struct {
	ID         string `parquet:"name=id, type=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Contract   string `parquet:"name=contract, type=UTF8, encoding=PLAIN_DICTIONARY"`
	AssetID    string `parquet:"name=asset_id, type=UTF8"`
	Attributes string `parquet:"name=attributes, type=UTF8"`
	Digest     string `parquet:"name=digest, type=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=UTF8"`
}

// ExportParquet writes every record matching f (ignoring its limit) to path
// and returns the number of rows written.
func (a *Archive) ExportParquet(ctx context.Context, path string, f Filter) (int, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("archive: create export dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("archive: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("archive: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	f.Limit = MaxLimit
	for {
		batch, err := a.Query(ctx, f)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range batch {
			row := &parquetRow{
				ID:         rec.ID.String(),
				Seq:        int64(rec.Seq),
				Type:       rec.Type,
				Contract:   rec.Contract,
				AssetID:    rec.AssetID,
				Attributes: rec.Attributes,
				Digest:     rec.Digest,
				CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("archive: parquet write: %w", err)
			}
			written++
			f.AfterSeq = rec.Seq
		}
		if len(batch) < MaxLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("archive: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("archive: close parquet file: %w", err)
	}
	return written, nil
}
