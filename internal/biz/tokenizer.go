package biz

import "regexp"

var wordSeparator = regexp.MustCompile(`\W+`)

// CountWords 按非单词字符切分并丢弃空片段
// 与计费一致：一个词等于一个 token
func CountWords(text string) int {
	count := 0
	for _, piece := range wordSeparator.Split(text, -1) {
		if piece != "" {
			count++
		}
	}
	return count
}
