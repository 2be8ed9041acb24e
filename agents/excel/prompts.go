package excel

import "fmt"

const analyzeSystem = "你是一名专业的数据分析助手。"

func analyzePrompt(table string) string {
	return fmt.Sprintf(`下面是一份从 Excel 表格中提取的数据内容，请你【仅基于提供的数据】进行分析，
不得引入任何表格之外的常识或假设。

请按照指定结构返回分析结果。

分析要求：
1. 给出表格的整体概览（用途、范围、规模）
2. 识别 2~5 个最有业务意义的关键指标
3. 对每个关键指标给出明确的分析结论
4. 不要重复表格原始数据
5. 所有结论都必须可以从表格数据中推导

数据内容如下：
--------------------
%s
--------------------
`, table)
}
