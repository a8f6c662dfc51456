package types

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Outline is an ordered mapping of section key ("1", "2", ...) to section.
// It serializes as a JSON object keyed by the section keys so that stored
// outlines look the same as the ones produced by the language model.
type Outline []OutlineSection

func (o Outline) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}{s.Title, s.Description})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Outline) UnmarshalJSON(data []byte) error {
	var raw map[string]struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Outline, 0, len(raw))
	for k, v := range raw {
		out = append(out, OutlineSection{Key: k, Title: v.Title, Description: v.Description})
	}
	// restore numeric key order
	sort.Slice(out, func(i, j int) bool {
		a, aerr := strconv.Atoi(out[i].Key)
		b, berr := strconv.Atoi(out[j].Key)
		if aerr != nil || berr != nil {
			return out[i].Key < out[j].Key
		}
		return a < b
	})
	*o = out
	return nil
}
