package agent

import "strings"

// Estimator 根据指令估算子操作总数。估算只用作启发式上界，
// 不是正确性依据，测试可以替换为确定性实现。
type Estimator func(instruction string) int

// EstimateByConnectives 按顺序连接词切分指令估算子操作数：
// N 个连接词对应 N+1 个子操作。
func EstimateByConnectives(instruction string) int {
	connectives := map[string]struct{}{
		"then":  {},
		"after": {},
		"next":  {},
	}
	count := 0
	for _, word := range strings.Fields(strings.ToLower(instruction)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if _, ok := connectives[word]; ok {
			count++
		}
	}
	return count + 1
}
