package bank

// Default returns the built-in wound-care self check: four questions with
// options A to D and four outcome categories over totals 0..14.
func Default() *Bank {
	return MustNew(defaultQuestions(), defaultCategories())
}

func defaultQuestions() []Question {
	return []Question{
		{
			Prompt: "Q1. 傷口現在有什麼變化？",
			Options: []Option{
				{Label: "A", Text: "紅腫熱痛、滲液增多", Score: 3},
				{Label: "B", Text: "看起來乾乾的、沒什麼變化", Score: 1},
				{Label: "C", Text: "表面有新生紅色肉芽", Score: 2},
				{Label: "D", Text: "顏色變暗、有黑色壞死組織", Score: 4},
			},
		},
		{
			Prompt: "Q2. 最近換藥時有發現什麼異常？",
			Options: []Option{
				{Label: "A", Text: "分泌物變多、有臭味", Score: 3},
				{Label: "B", Text: "傷口顏色變淡、變小", Score: 2},
				{Label: "C", Text: "每次都長一樣，沒什麼變化", Score: 1},
				{Label: "D", Text: "沒注意，沒看清楚", Score: 0},
			},
		},
		{
			Prompt: "Q3. 傷口周圍皮膚狀況如何？",
			Options: []Option{
				{Label: "A", Text: "很紅，還有水泡", Score: 3},
				{Label: "B", Text: "看起來還不錯，有點癢", Score: 2},
				{Label: "C", Text: "很乾，有點裂開", Score: 1},
				{Label: "D", Text: "變黑變硬", Score: 4},
			},
		},
		{
			Prompt: "Q4. 最近換藥或照護的頻率是？",
			Options: []Option{
				{Label: "A", Text: "一天換好幾次", Score: 3},
				{Label: "B", Text: "每天固定一次", Score: 2},
				{Label: "C", Text: "偶爾才換", Score: 1},
				{Label: "D", Text: "都沒換", Score: 0},
			},
		},
	}
}

func defaultCategories() []Category {
	return []Category{
		{
			Name:   "停滯劍士 · 穩如山",
			Min:    0,
			Max:    3,
			Advice: "傷口可能「停在某階段沒有改善」\n建議：檢視敷料選擇與照護一致性。",
		},
		{
			Name:   "小肉潤 · 百草谷谷主",
			Min:    4,
			Max:    6,
			Advice: "傷口正處於「增生期、進步中」\n建議：維持濕潤環境、避免過度清創，提供充足營養與正確照護。",
		},
		{
			Name:   "紅腫魔王 · 腐氣天君",
			Min:    7,
			Max:    9,
			Advice: "傷口可能處於「發炎期或感染期」\n建議：加強清潔與換藥頻率，注意是否需醫師評估使用抗生素或清創。",
		},
		{
			Name:   "黑氣掌門 · 枯木尊者",
			Min:    10,
			Max:    14,
			Advice: "傷口可能有「壞死組織或難癒傾向」\n建議：由專業醫療團隊評估是否需清創或其他治療。",
		},
	}
}
