package disabled

import (
	"context"
	"fmt"

	"github.com/yanthraa/chat-memory/internal/model"
	registryextract "github.com/yanthraa/chat-memory/internal/registry/extract"
)

func init() {
	registryextract.Register(registryextract.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registryextract.ProfileExtractor, error) {
			return &disabledExtractor{}, nil
		},
	})
}

type disabledExtractor struct{}

func (d *disabledExtractor) Name() string { return "none" }

func (d *disabledExtractor) Extract(ctx context.Context, summary string, existing model.Profile) (model.ProfileDelta, error) {
	return model.ProfileDelta{}, fmt.Errorf("profile extraction is disabled")
}
