package dataflows

import (
	"strings"
	"unicode"
)

// keywordRule maps a label to the substrings that select it. Rules are
// evaluated in order and the first match wins.
type keywordRule struct {
	label    string
	keywords []string
}

func firstMatch(text string, rules []keywordRule, fallback string) string {
	upper := strings.ToUpper(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(upper, strings.ToUpper(kw)) {
				return r.label
			}
		}
	}
	return fallback
}

const (
	FundTypeStock = "股票型"
	FundTypeMixed = "混合型"
	FundTypeBond  = "债券型"
	FundTypeIndex = "指数型"
	FundTypeQDII  = "QDII"
	FundTypeMoney = "货币型"
	FundTypeFOF   = "FOF"
	FundTypeOther = "其他"
)

// FundTypeOrder is the display order of type summaries.
var FundTypeOrder = []string{FundTypeStock, FundTypeMixed, FundTypeBond, FundTypeIndex, FundTypeQDII}

// ETF/LOF first: their names often carry other keywords too.
var fundNameRules = []keywordRule{
	{FundTypeIndex, []string{"ETF", "LOF", "指数"}},
	{FundTypeQDII, []string{"QDII", "美元", "美国", "纳斯达克", "标普"}},
	{FundTypeBond, []string{"债", "利率", "信用"}},
	{FundTypeMixed, []string{"混合", "配置", "平衡", "灵活"}},
	{FundTypeStock, []string{"股票", "成长", "价值", "蓝筹"}},
}

// InferFundType guesses the fund type from its short name. Names matching
// nothing are treated as mixed funds.
func InferFundType(name string) string {
	return firstMatch(name, fundNameRules, FundTypeMixed)
}

var fundTypeLabels = []keywordRule{
	{FundTypeStock, []string{"股票型"}},
	{FundTypeMixed, []string{"混合型"}},
	{FundTypeBond, []string{"债券型"}},
	{FundTypeIndex, []string{"指数型"}},
	{FundTypeMoney, []string{"货币型"}},
	{FundTypeQDII, []string{"QDII"}},
	{FundTypeFOF, []string{"FOF"}},
}

// ParseFundType normalizes a vendor type label such as "混合型-偏股".
func ParseFundType(label string) string {
	return firstMatch(label, fundTypeLabels, FundTypeOther)
}

const (
	BondTreasury    = "treasury"
	BondConvertible = "convertible"
	BondCorporate   = "corporate"
)

func InferBondType(name string) string {
	return firstMatch(name, []keywordRule{
		{BondTreasury, []string{"国债"}},
		{BondConvertible, []string{"转债"}},
	}, BondCorporate)
}

const (
	ETFCrossBorder = "cross_border"
	ETFBond        = "bond"
	ETFCommodity   = "commodity"
	ETFMoney       = "money"
	ETFSector      = "sector"
	ETFBroad       = "broad"
)

var etfNameRules = []keywordRule{
	{ETFCrossBorder, []string{"纳指", "纳斯达克", "标普", "恒生", "港股", "中概", "日经", "德国", "法国", "美国", "QDII"}},
	{ETFBond, []string{"债"}},
	{ETFCommodity, []string{"黄金", "白银", "有色", "豆粕", "能源化工", "商品"}},
	{ETFMoney, []string{"货币", "现金", "添益", "快线"}},
	{ETFSector, []string{"医药", "医疗", "证券", "券商", "银行", "军工", "半导体", "芯片", "新能源", "光伏", "消费", "酒", "地产", "传媒", "游戏", "计算机", "通信", "人工智能", "电池", "煤炭", "钢铁", "化工", "农业", "科技"}},
}

// InferETFType classifies an ETF by name; broad-market is the default.
func InferETFType(name string) string {
	return firstMatch(name, etfNameRules, ETFBroad)
}

const (
	FuturesIndex     = "index"
	FuturesBond      = "bond"
	FuturesCommodity = "commodity"
)

var futuresExchanges = []struct {
	exchange string
	market   int
	prefixes []string
}{
	{"CFFEX", 8, []string{"IF", "IC", "IH", "IM", "T", "TF", "TS", "TL"}},
	{"SHFE", 113, []string{"AU", "AG", "CU", "AL", "ZN", "PB", "NI", "SN", "RB", "HC", "SS", "FU", "BU", "RU", "SP", "WR", "AO", "BR"}},
	{"INE", 142, []string{"SC", "LU", "NR", "BC", "EC"}},
	{"DCE", 114, []string{"I", "J", "JM", "C", "CS", "A", "B", "M", "Y", "P", "L", "V", "PP", "EB", "PG", "EG", "LH", "RR", "JD", "FB", "BB"}},
	{"CZCE", 115, []string{"CF", "SR", "TA", "MA", "OI", "RM", "FG", "ZC", "SF", "SM", "AP", "CJ", "PK", "UR", "SA", "PF", "CY", "PX", "SH"}},
}

// ContractPrefix returns the upper-case letters of a contract code, e.g. "rb2410" -> "RB".
func ContractPrefix(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsLetter(r) && r < unicode.MaxASCII {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// FuturesExchange maps a contract code to its exchange, or "UNKNOWN".
func FuturesExchange(code string) string {
	p := ContractPrefix(code)
	for _, ex := range futuresExchanges {
		for _, pre := range ex.prefixes {
			if p == pre {
				return ex.exchange
			}
		}
	}
	return "UNKNOWN"
}

// futuresMarket is the eastmoney market id of an exchange.
func futuresMarket(exchange string) (int, bool) {
	for _, ex := range futuresExchanges {
		if ex.exchange == exchange {
			return ex.market, true
		}
	}
	return 0, false
}

func FuturesCategory(code string) string {
	switch ContractPrefix(code) {
	case "IF", "IC", "IH", "IM":
		return FuturesIndex
	case "T", "TF", "TS", "TL":
		return FuturesBond
	default:
		return FuturesCommodity
	}
}

var highImpactKeywords = []string{
	"降准", "降息", "加息", "央行", "货币政策", "利率", "IPO", "退市", "停牌",
	"暴涨", "暴跌", "涨停", "跌停", "重大", "紧急", "突发", "首次", "历史",
	"GDP", "CPI", "PMI", "就业", "失业", "战争", "制裁", "贸易战", "关税",
}

var mediumImpactKeywords = []string{
	"政策", "改革", "规划", "意见", "通知", "融资", "并购", "重组", "股权",
	"新能源", "芯片", "半导体", "人工智能", "AI", "房地产", "楼市", "医药", "银行",
}

// NewsImportance scores text 1..5: policy sources start at 2, one
// high-impact keyword adds 2 and one medium keyword adds 1.
func NewsImportance(text string, policy bool) int {
	score := 1
	if policy {
		score = 2
	}
	for _, kw := range highImpactKeywords {
		if strings.Contains(text, kw) {
			score += 2
			break
		}
	}
	for _, kw := range mediumImpactKeywords {
		if strings.Contains(text, kw) {
			score++
			break
		}
	}
	return min(score, 5)
}

var sectorRules = []keywordRule{
	{"银行", []string{"银行", "信贷", "存款", "贷款"}},
	{"证券", []string{"证券", "券商", "股市", "交易所"}},
	{"保险", []string{"保险", "寿险", "财险"}},
	{"房地产", []string{"房地产", "楼市", "住房", "土地"}},
	{"新能源", []string{"新能源", "光伏", "风电", "储能", "电池"}},
	{"汽车", []string{"汽车", "新能源车", "电动车"}},
	{"半导体", []string{"半导体", "芯片", "集成电路"}},
	{"医药", []string{"医药", "医疗", "药品", "疫苗"}},
	{"消费", []string{"消费", "零售", "白酒", "食品"}},
	{"军工", []string{"军工", "国防", "军事", "武器"}},
	{"科技", []string{"科技", "人工智能", "AI", "互联网"}},
	{"农业", []string{"农业", "粮食", "养殖", "畜牧"}},
}

// RelatedSectors lists every sector whose keywords occur in text, comma separated.
func RelatedSectors(text string) string {
	var found []string
	for _, r := range sectorRules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				found = append(found, r.label)
				break
			}
		}
	}
	return strings.Join(found, ",")
}

// StockMarket guesses the listing market of a stock code.
func StockMarket(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasSuffix(c, ".HK"):
		return "HK"
	case strings.HasSuffix(c, ".US"):
		return "US"
	case strings.HasSuffix(c, ".SH"), strings.HasSuffix(c, ".SZ"):
		return "CN"
	}
	if isDigits(c) {
		if len(c) == 6 {
			return "CN"
		}
		if len(c) <= 5 {
			return "HK"
		}
	}
	return "US"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
