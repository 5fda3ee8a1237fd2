// Package api 暴露运行编排的 REST 接口。
package api
