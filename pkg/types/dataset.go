package types

// DatasetMetadata carries provenance and integrity information for a
// dataset separate from its rules, so it can be authenticated on its own.
type DatasetMetadata struct {
	Name            string `yaml:"name" json:"name"`
	Version         string `yaml:"version" json:"version"`
	TotalRules      int    `yaml:"total_rules" json:"total_rules"`
	DatasetBuildID  string `yaml:"dataset_build_id,omitempty" json:"dataset_build_id,omitempty"`
	HMACSignature   string `yaml:"hmac_signature,omitempty" json:"hmac_signature,omitempty"`
	HMACKeyID       string `yaml:"hmac_key_id,omitempty" json:"hmac_key_id,omitempty"`
	Source          string `yaml:"source,omitempty" json:"source,omitempty"`
}

// Dataset is a versioned, optionally-signed bundle of rules loaded from a
// single YAML file.
type Dataset struct {
	Metadata DatasetMetadata `yaml:"metadata" json:"metadata"`
	Rules    []Rule          `yaml:"rules" json:"rules"`
}

// Signed reports whether the dataset carries an HMAC signature at all.
func (d *Dataset) Signed() bool {
	return d.Metadata.HMACSignature != ""
}
