package plan

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/promptgrid/internal/adapter"
)

func TestRender(t *testing.T) {
	p := &Plan{
		Script: "poster",
		Instances: []Instance{
			{Index: 0, ID: "hero", Step: "hero", Adapter: "a1111_txt2img", Output: "hero.png",
				Request: adapter.Request{Prompt: "fox", Width: 1024, Height: 768, Steps: 30, CFGScale: 7, Sampler: "Euler a", Seed: -1, BatchSize: 1}},
			{Index: 1, ID: `themed["dusk"]`, Step: "themed", Key: "dusk", Adapter: "a1111_txt2img", Output: "themes/dusk.png",
				Request: adapter.Request{Prompt: "dusk", Width: 512, Height: 512, Steps: 20, CFGScale: 6.5, Sampler: "Euler", Seed: 7, BatchSize: 2}},
		},
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, p, FormatText))

		out := buf.String()
		assert.Contains(t, out, "INSTANCE")
		assert.Contains(t, out, "1024x768")
		assert.Contains(t, out, "512x512 x2")
		assert.Contains(t, out, `themed["dusk"]`)
		assert.Contains(t, out, "6.5")
		assert.Contains(t, out, "2 instance(s) planned for poster.")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, p, FormatJSON))

		var decoded struct {
			Script    string `json:"script"`
			Instances []struct {
				ID      string `json:"id"`
				Key     string `json:"key"`
				Request struct {
					Seed int64 `json:"seed"`
				} `json:"request"`
			} `json:"instances"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "poster", decoded.Script)
		require.Len(t, decoded.Instances, 2)
		assert.Equal(t, "dusk", decoded.Instances[1].Key)
		assert.Equal(t, int64(7), decoded.Instances[1].Request.Seed)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := Render(&bytes.Buffer{}, p, "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown output format "yaml"`)
	})
}
