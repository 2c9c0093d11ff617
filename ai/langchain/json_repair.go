// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package langchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/enrich/ai"
)

// tagListKeys are the object keys models wrap the tag list in, in lookup order.
var tagListKeys = []string{"tags", "smart_tags", "smartTags", "tag_list", "results", "data"}

// unquotedKey matches a key that lost its opening quote, as in `, tag_category":`.
var unquotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)":`)

var (
	errNoJSON = errors.New("response contains no JSON")
	errNoTags = errors.New("response has no tags field")
)

// decodeTagPayload turns a model response into tags. It tolerates code fences,
// prose before or after the JSON value, keys missing their opening quote,
// alternate envelope keys, a single tag object, confidence scores sent as
// strings or percentages, and entities sent as a single string.
func decodeTagPayload(raw string) ([]ai.GeneratedTag, error) {
	value, err := firstJSONValue(stripCodeFences(raw))
	if err != nil {
		return nil, err
	}

	list, err := tagList(value)
	if err != nil {
		return nil, err
	}

	var wire []wireTag
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, err
	}
	tags := make([]ai.GeneratedTag, len(wire))
	for i, w := range wire {
		tags[i] = ai.GeneratedTag{
			Name:        w.Name,
			Confidence:  float64(w.Confidence),
			Category:    w.Category,
			Description: w.Description,
			Entities:    []string(w.Entities),
		}
	}
	return tags, nil
}

// firstJSONValue returns the first object or array in s. Anything after it is ignored.
func firstJSONValue(s string) (json.RawMessage, error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, errNoJSON
	}
	s = s[start:]

	value, err := decodeFirst(s)
	if err == nil {
		return value, nil
	}
	if repaired := repairJSON(s); repaired != s {
		if value, rerr := decodeFirst(repaired); rerr == nil {
			return value, nil
		}
	}
	return nil, err
}

func decodeFirst(s string) (json.RawMessage, error) {
	var value json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s)).Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// repairJSON restores the opening quote of object keys, a slip some local models make.
func repairJSON(s string) string {
	return unquotedKey.ReplaceAllString(s, `$1"$2":`)
}

// tagList finds the array of tags inside value.
func tagList(value json.RawMessage) (json.RawMessage, error) {
	if value[0] == '[' {
		return value, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, err
	}
	for _, key := range tagListKeys {
		if list, ok := fields[key]; ok && len(list) > 0 && list[0] == '[' {
			return list, nil
		}
	}
	if _, ok := fields["tag_name"]; ok {
		return json.RawMessage("[" + string(value) + "]"), nil
	}
	return nil, errNoTags
}

// wireTag is a tag as models actually send it.
type wireTag struct {
	Name        string       `json:"tag_name"`
	Confidence  looseFloat   `json:"confidence_score"`
	Category    string       `json:"tag_category"`
	Description string       `json:"tag_description"`
	Entities    looseStrings `json:"entities"`
}

// looseFloat accepts 0.8, "0.8" and "80%".
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return fmt.Errorf("confidence_score %s: %w", b, err)
	}
	if percent {
		v /= 100
	}
	*f = looseFloat(v)
	return nil
}

// looseStrings accepts a list of strings or a single string.
type looseStrings []string

func (l *looseStrings) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one != "" {
			*l = looseStrings{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}
