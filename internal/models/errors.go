package models

import "errors"

var (
	// ErrBuildNotFound 构建记录不存在
	ErrBuildNotFound = errors.New("build run not found")
)
