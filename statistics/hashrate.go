package statistics

const slots = 3600

//HashRate keeps one sample per second for the last hour
type HashRate struct {
	dataSeries [slots]float64
	currentPos int
	filled     int
}

func (hr *HashRate) Add(num float64) {
	hr.currentPos = (hr.currentPos + 1) % slots
	hr.dataSeries[hr.currentPos] = num
	if hr.filled < slots {
		hr.filled++
	}
}

func (hr *HashRate) RecentNSum(recentn int) (sum float64) {
	if recentn > hr.filled {
		recentn = hr.filled
	}
	pos := 0
	for i := 0; i < recentn; i++ {
		pos = (hr.currentPos - i)
		if pos < 0 {
			pos += slots
		}
		sum += hr.dataSeries[pos]
	}
	return
}

//Average is the per-second mean over the last n samples, or fewer if the series is younger
func (hr *HashRate) Average(recentn int) float64 {
	if recentn > hr.filled {
		recentn = hr.filled
	}
	if recentn == 0 {
		return 0
	}
	return hr.RecentNSum(recentn) / float64(recentn)
}

func (hr *HashRate) Reset() {
	*hr = HashRate{}
}
