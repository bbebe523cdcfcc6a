package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	model "go_mock_resolver/internal/domain/model/mock_rule"

	"gopkg.in/yaml.v3"
)

// fileRule 文件中未声明 enabled 的规则默认启用
type fileRule struct {
	*model.MockRule
}

func (f *fileRule) UnmarshalYAML(node *yaml.Node) error {
	rule := &model.MockRule{Enabled: true}
	if err := node.Decode(rule); err != nil {
		return err
	}
	f.MockRule = rule
	return nil
}

func (f *fileRule) UnmarshalJSON(data []byte) error {
	rule := &model.MockRule{Enabled: true}
	if err := json.Unmarshal(data, rule); err != nil {
		return err
	}
	f.MockRule = rule
	return nil
}

type ruleFile struct {
	Rules []fileRule `json:"rules" yaml:"rules"`
}

// LoadRuleFile 读取 YAML / JSON 规则文件，支持顶层 rules 列表或裸列表
func LoadRuleFile(path string) ([]*model.MockRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rules, err := ParseRules(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rules, nil
}

func ParseRules(data []byte, isJSON bool) ([]*model.MockRule, error) {
	var entries []fileRule
	if isJSON {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &entries); err != nil {
				return nil, err
			}
		} else {
			var doc ruleFile
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, err
			}
			entries = doc.Rules
		}
	} else {
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, err
		}
		if len(root.Content) == 0 {
			return nil, nil
		}
		switch doc := root.Content[0]; doc.Kind {
		case yaml.SequenceNode:
			if err := doc.Decode(&entries); err != nil {
				return nil, err
			}
		case yaml.MappingNode:
			var f ruleFile
			if err := doc.Decode(&f); err != nil {
				return nil, err
			}
			entries = f.Rules
		default:
			return nil, fmt.Errorf("rules file must be a list or contain a rules list")
		}
	}

	rules := make([]*model.MockRule, 0, len(entries))
	for i, e := range entries {
		if e.MockRule == nil {
			return nil, fmt.Errorf("rule #%d is empty", i)
		}
		rules = append(rules, e.MockRule)
	}
	return rules, nil
}
