package snippet

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sheets-crm/internal/model"
)

// File is the YAML layout accepted by Load:
//
//	snippets:
//	  - key: Claude_research_SaaS
//	    value: |
//	      ...
type File struct {
	Snippets []model.Snippet `yaml:"snippets"`
}

// Load reads a YAML snippet file and upserts every entry. It returns the
// number written.
func Load(ctx context.Context, store Store, r io.Reader) (int, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return 0, eris.Wrap(err, "snippet: decode yaml")
	}
	n := 0
	for _, s := range f.Snippets {
		if _, err := store.Upsert(ctx, s.Key, s.Value); err != nil {
			return n, err
		}
		n++
	}
	zap.L().Info("snippets loaded", zap.Int("count", n))
	return n, nil
}
