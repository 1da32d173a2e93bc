package dataset

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// canonicalYAML re-encodes raw YAML bytes with every mapping's keys sorted
// alphabetically and the metadata.hmac_signature field stripped, matching
// the original loader's `yaml.dump(data, sort_keys=True)` after popping the
// signature. yaml.v3 does not sort map keys on its own, so this walks the
// parsed node tree and reorders mapping pairs before re-encoding.
func canonicalYAML(raw []byte) (string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	if len(doc.Content) == 0 {
		return "", nil
	}
	root := doc.Content[0]
	stripSignature(root)
	sortMappingKeys(root)

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", err
	}
	enc.Close()
	return b.String(), nil
}

func stripSignature(node *yaml.Node) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Value == "metadata" && i+1 < len(node.Content) {
			removeKey(node.Content[i+1], "hmac_signature")
		}
	}
}

func removeKey(mapping *yaml.Node, key string) {
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}

func sortMappingKeys(node *yaml.Node) {
	switch node.Kind {
	case yaml.MappingNode:
		type pair struct{ key, value *yaml.Node }
		pairs := make([]pair, 0, len(node.Content)/2)
		for i := 0; i < len(node.Content); i += 2 {
			pairs = append(pairs, pair{node.Content[i], node.Content[i+1]})
		}
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairs[i].key.Value < pairs[j].key.Value
		})
		content := make([]*yaml.Node, 0, len(node.Content))
		for _, p := range pairs {
			content = append(content, p.key, p.value)
			sortMappingKeys(p.value)
		}
		node.Content = content
	case yaml.SequenceNode:
		for _, c := range node.Content {
			sortMappingKeys(c)
		}
	}
}
