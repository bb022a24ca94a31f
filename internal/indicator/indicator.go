// Package indicator содержит чистые функции расчета технических индикаторов.
// Все функции детерминированы и не имеют побочных эффектов; недостаток
// истории дает нейтральный или неопределенный (NaN) результат, а не ошибку.
package indicator

import (
	"math"

	"github.com/skalibog/bast/pkg/models"
)

// EMA рассчитывает экспоненциальную скользящую среднюю со сглаживанием
// 2/(period+1). Ряд затравливается первым значением, поэтому первые
// элементы смещены — это принятое поведение, не дефект.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}

	k := 2.0 / (float64(period) + 1.0)
	result := make([]float64, len(values))
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = values[i]*k + result[i-1]*(1.0-k)
	}
	return result
}

// RSI рассчитывает индекс относительной силы по простым скользящим средним
// положительных и отрицательных приращений. Пока окно не заполнено или
// средний убыток равен нулю, возвращается нейтральное значение 50.
func RSI(closes []float64, period int) []float64 {
	result := make([]float64, len(closes))
	for i := range result {
		result[i] = 50
	}
	if len(closes) < 2 || period <= 0 {
		return result
	}

	// Приращения: deltas[i] соответствует closes[i+1]-closes[i]
	deltas := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas[i-1] = closes[i] - closes[i-1]
	}

	for i := period; i < len(closes); i++ {
		var up, down float64
		for j := i - period; j < i; j++ {
			d := deltas[j]
			if d > 0 {
				up += d
			} else {
				down -= d
			}
		}
		up /= float64(period)
		down /= float64(period)

		if down == 0 {
			// Нулевой средний убыток: оставляем нейтральное значение
			continue
		}
		rs := up / down
		result[i] = 100 - 100/(1+rs)
	}
	return result
}

// Bollinger рассчитывает полосы Боллинджера: скользящее среднее плюс-минус
// stdDevMultiplier генеральных стандартных отклонений. Индексы до заполнения
// окна содержат NaN — вызывающая сторона обязана трактовать их как
// отсутствие сигнала.
func Bollinger(closes []float64, period int, stdDevMultiplier float64) (upper, lower []float64) {
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		upper[i] = math.NaN()
		lower[i] = math.NaN()
	}
	if period <= 0 {
		return upper, lower
	}

	for i := period - 1; i < len(closes); i++ {
		window := closes[i-period+1 : i+1]

		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(period)

		var variance float64
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		sigma := math.Sqrt(variance / float64(period))

		upper[i] = mean + stdDevMultiplier*sigma
		lower[i] = mean - stdDevMultiplier*sigma
	}
	return upper, lower
}

// ATR рассчитывает средний истинный диапазон за period свечей и возвращает
// только последнее значение. При недостатке данных возвращается NaN.
func ATR(candles []*models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return math.NaN()
	}

	trs := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prevClose := candles[i-1].Close
			tr = math.Max(tr, math.Abs(c.High-prevClose))
			tr = math.Max(tr, math.Abs(c.Low-prevClose))
		}
		trs[i] = tr
	}

	var sum float64
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

// DetectWedge проверяет сжатие цены за последние lookback свечей: разброс
// максимумов и разброс минимумов каждый меньше 0.5% соответствующего
// среднего. Это простая эвристика, а не распознаватель фигур.
func DetectWedge(candles []*models.Candle, lookback int) bool {
	if len(candles) == 0 || lookback <= 0 {
		return false
	}
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}

	var highMax, highMin, lowMax, lowMin, highSum, lowSum float64
	for i, c := range candles {
		if i == 0 || c.High > highMax {
			highMax = c.High
		}
		if i == 0 || c.High < highMin {
			highMin = c.High
		}
		if i == 0 || c.Low > lowMax {
			lowMax = c.Low
		}
		if i == 0 || c.Low < lowMin {
			lowMin = c.Low
		}
		highSum += c.High
		lowSum += c.Low
	}

	n := float64(len(candles))
	highMean := highSum / n
	lowMean := lowSum / n

	return (highMax-highMin) < highMean*0.005 && (lowMax-lowMin) < lowMean*0.005
}

// NearResistance сообщает, находится ли цена в буферной зоне под недавним
// максимумом
func NearResistance(price, recentHigh, bufferPct float64) bool {
	return price >= recentHigh*(1-bufferPct)
}

// IsBreakout сообщает, пробита ли цена выше недавнего максимума на объеме
// не ниже avgVolume*volumeMultiplier
func IsBreakout(price, recentHigh, volume, avgVolume, volumeMultiplier float64) bool {
	return price > recentHigh && volume >= avgVolume*volumeMultiplier
}
