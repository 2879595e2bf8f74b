package research

import (
	"planforge/internal/tools"
)

// RegisterAll registers all network tools with the given registry.
func RegisterAll(registry *tools.Registry) error {
	allTools := []*tools.Tool{
		WebFetchTool(),
		WebFetchManyTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
