package model

import (
	"regexp"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{[^}]+\}|:\w+`)
	regexSegPattern    = regexp.MustCompile(`(/[^/]*[+*?[\]{}\\()|.][^/]*)`)
	numericSegPattern  = regexp.MustCompile(`/\d+(/|$)`)
	repeatStarPattern  = regexp.MustCompile(`\*(\*)+`)
)

// NormalizePath 将路径中的动态部分替换为 *
//
//	/api/user/123              => /api/user/*
//	^/api/user/\d+$            => /api/user/*
//	/api/order/{order_id}      => /api/order/*
//	/api/product/[a-zA-Z0-9]+  => /api/product/*
func NormalizePath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 && !strings.ContainsAny(path[:i], "^$\\[") {
		path = path[:i]
	}
	// 处理正则表达式开头的 ^ 和结尾的 $
	path = strings.TrimPrefix(path, "^")
	path = strings.TrimSuffix(path, "$")

	// 替换 {xxx} 或 :xxx 为 *
	path = placeholderPattern.ReplaceAllString(path, "*")

	// 替换路径中，正则表达式格式 为 *
	path = regexSegPattern.ReplaceAllString(path, "/*")

	// 替换纯数字路径段为 *
	for numericSegPattern.MatchString(path) {
		path = numericSegPattern.ReplaceAllString(path, "/*$1")
	}

	// 合并连续的 *
	path = repeatStarPattern.ReplaceAllString(path, "*")

	return path
}

func BuildL1MatchIndexKeyFromRule(rule *MockRule) string {
	keys := rule.IndexKeys()
	return keys[0]
}

func BuildL1MatchIndexKey(schema string, method string, path string) string {
	if method == "" {
		method = "*"
	}
	normalizedPath := NormalizePath(path)
	methodLower := strings.ToLower(method)
	return strings.Join([]string{schema, methodLower, normalizedPath}, "_")
}

func containsAny(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if h != "" && strings.Contains(h, needle) {
			return true
		}
	}
	return false
}
