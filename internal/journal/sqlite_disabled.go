//go:build !sqlite
// +build !sqlite

package journal

import (
	"errors"

	logx "miunlock/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Writer, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite journal not built: rebuild with -tags sqlite")
}
