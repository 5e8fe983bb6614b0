package retrieval

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/db"
)

// Options selects and configures a Backend.
type Options struct {
	Backend     string         `yaml:"backend" mapstructure:"backend"` // memory, postgres, chromem
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Schema      string         `yaml:"schema" mapstructure:"schema"`
	Table       string         `yaml:"table" mapstructure:"table"`
	ChromemPath string         `yaml:"chromem_path" mapstructure:"chromem_path"`
	Compress    bool           `yaml:"compress" mapstructure:"compress"`
	Pool        *db.PoolConfig `yaml:"pool" mapstructure:"pool"`
	TopK        int            `yaml:"top_k" mapstructure:"top_k"`
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	log := zap.L().With(zap.String("backend", opts.Backend))

	switch opts.Backend {
	case "", "memory":
		log.Info("retrieval: using in-memory backend")
		return NewMemory(), nil
	case "postgres", "pgvector":
		if opts.DatabaseURL == "" {
			return nil, eris.New("retrieval: database_url is required for the postgres backend")
		}
		b, err := NewPostgres(ctx, opts.DatabaseURL, PostgresOptions{Schema: opts.Schema, Table: opts.Table, Pool: opts.Pool})
		if err != nil {
			return nil, err
		}
		log.Info("retrieval: using pgvector backend", zap.String("table", b.table))
		return b, nil
	case "chromem":
		b, err := NewChromem(opts.ChromemPath, opts.Compress)
		if err != nil {
			return nil, err
		}
		log.Info("retrieval: using chromem backend", zap.String("path", opts.ChromemPath))
		return b, nil
	default:
		return nil, eris.Errorf("retrieval: unknown backend %q", opts.Backend)
	}
}
