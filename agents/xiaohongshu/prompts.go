package xiaohongshu

import "fmt"

const topicSystem = "你是一名熟悉小红书平台调性的内容策划，擅长发现能引发收藏和讨论的选题。"

const articleSystem = "你是一名小红书爆款笔记写手，语气亲切真诚，善用分段、emoji 和话题标签。"

const topicPrompt = `请为一个分享职场成长与个人效率的小红书账号策划 5 个笔记选题。

要求：
1. 每个选题是一句话，20 字以内，直接点出读者痛点或收获
2. 选题之间角度不同，避免重复
3. 优先选择容易引发共鸣、收藏或评论的话题
4. 不要解释理由，只给出选题`

func articlePrompt(topic string) string {
	return fmt.Sprintf(`请围绕选题「%s」写一篇小红书笔记。

写作要求：
1. 第一行用 Markdown 一级标题（# 开头）给出吸引人的标题，20 字以内
2. 开头两三句话直接戳中痛点，引起读者共鸣
3. 正文分 3～5 个小点展开，每点有具体可执行的方法或例子
4. 段落短小，适当使用 emoji
5. 结尾给出一句互动引导，并附上 3～5 个相关话题标签（#话题）
6. 全文 400～800 字
`, topic)
}
