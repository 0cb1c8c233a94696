package db

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/txn"
)

// Backup writes a consistent copy of the database. dest is either a
// filesystem path or an s3://bucket/key URL. Not allowed inside a
// transaction; the copy reflects the last committed state.
func (c *Conn) Backup(dest string) error {
	if c.manager.Current() != nil {
		return c.fail(core.NewError(core.KindUsage, "cannot backup during a transaction"))
	}
	if err := c.shared.LockWriter(c.manager.Timeout()); err != nil {
		return c.fail(err)
	}
	defer c.shared.UnlockWriter()

	p := c.shared.Pager
	if log := c.manager.WAL(); log != nil {
		if err := log.Checkpoint(txn.Apply(p)); err != nil {
			return c.fail(err)
		}
	}
	if err := p.Sync(); err != nil {
		return c.fail(err)
	}

	source, err := p.Filesystem().Open(p.Path())
	if err != nil {
		return c.fail(core.Errorf(core.KindIO, "open %s: %v", p.Path(), err))
	}
	defer source.Close()
	data, err := io.ReadAll(source)
	if err != nil {
		return c.fail(core.Errorf(core.KindIO, "read %s: %v", p.Path(), err))
	}

	if strings.HasPrefix(dest, "s3://") {
		return c.fail(uploadS3(context.Background(), dest, data))
	}
	return c.fail(writeFileCopy(c, dest, data))
}

func writeFileCopy(c *Conn, dest string, data []byte) error {
	out, err := c.fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return core.Errorf(core.KindCantOpen, "create %s: %v", dest, err)
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return core.Errorf(core.KindIO, "write %s: %v", dest, err)
	}
	return out.Close()
}

func uploadS3(ctx context.Context, dest string, data []byte) error {
	bucket, key, err := parseS3URL(dest)
	if err != nil {
		return err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return core.Errorf(core.KindCantOpen, "load AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return core.Errorf(core.KindIO, "upload to %s: %v", dest, err)
	}
	return nil
}

func parseS3URL(dest string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(dest, "s3://")
	bucket, key, found := strings.Cut(trimmed, "/")
	if !found || bucket == "" || key == "" {
		return "", "", core.Errorf(core.KindUsage, "malformed S3 URL %q", dest)
	}
	return bucket, key, nil
}
