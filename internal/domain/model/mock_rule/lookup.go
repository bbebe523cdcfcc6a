package model

import (
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// FieldPath 将 a.b.0.c 转换为 jsonpath 表达式，数字段按数组下标处理
func FieldPath(dotted string) jp.Expr {
	x := jp.R()
	for _, part := range strings.Split(dotted, ".") {
		if i, err := strconv.Atoi(part); err == nil && i >= 0 {
			x = x.N(i)
			continue
		}
		x = x.C(part)
	}
	return x
}

// Lookup 在解析后的请求体中按点路径取值，原始字节体不支持查找
func Lookup(body any, dotted string) (any, bool) {
	if dotted == "" {
		return nil, false
	}
	switch body.(type) {
	case map[string]any, []any:
	default:
		return nil, false
	}
	return LookupPath(body, FieldPath(dotted))
}

func LookupPath(body any, x jp.Expr) (any, bool) {
	results := x.Get(body)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}
