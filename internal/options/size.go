package options

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"imagegen-mcp/internal/logger"
	"imagegen-mcp/internal/types"

	"go.uber.org/zap"
)

// aspectWeight 宽高比差异的权重
// 面积按百万像素计，候选尺寸之间的面积差不超过 0.53，宽高比始终优先
const aspectWeight = 1000.0

const megapixel = 1e6

var sizePattern = regexp.MustCompile(`^(\d+)[xX](\d+)$`)

// NormalizeSize 将任意尺寸字符串映射到提供方支持的尺寸
// 无法解析时返回 SizeAuto，不会报错
func NormalizeSize(requested string) types.SizeSpec {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == "auto" {
		return types.SizeAuto
	}

	for _, s := range types.SupportedSizes {
		if s.String() == requested {
			return s
		}
	}

	m := sizePattern.FindStringSubmatch(requested)
	if m == nil {
		logger.Debug("无法解析尺寸，使用 auto", zap.String("size", requested))
		return types.SizeAuto
	}
	w, errW := strconv.Atoi(m[1])
	h, errH := strconv.Atoi(m[2])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		logger.Debug("尺寸数值无效，使用 auto", zap.String("size", requested))
		return types.SizeAuto
	}

	best := types.SupportedSizes[0]
	bestScore := math.Inf(1)
	for _, s := range types.SupportedSizes {
		score := sizeScore(w, h, s)
		// 严格小于，平局时保留先出现的尺寸
		if score < bestScore {
			best, bestScore = s, score
		}
	}

	logger.Debug("尺寸已归一化",
		zap.String("requested", requested),
		zap.String("normalized", best.String()),
	)
	return best
}

func sizeScore(w, h int, candidate types.SizeSpec) float64 {
	reqRatio := float64(w) / float64(h)
	candRatio := float64(candidate.Width) / float64(candidate.Height)
	reqArea := float64(w) * float64(h) / megapixel
	candArea := float64(candidate.Width) * float64(candidate.Height) / megapixel
	return aspectWeight*math.Abs(reqRatio-candRatio) + math.Abs(reqArea-candArea)
}
