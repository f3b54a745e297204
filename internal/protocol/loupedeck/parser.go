package loupedeck

import "bytes"

// Parser 处理半包/粘包的流式解帧器
// 帧格式：magic(0x82) + len(1) + payload[len]，magic之前的噪声字节直接丢弃。
type Parser struct {
	buf []byte
}

// NewParser 创建流式解帧器
func NewParser() *Parser { return &Parser{} }

// Feed 追加数据并尽可能解出多帧载荷
// 任意切分喂入与一次性喂入结果一致；不完整帧保留在缓冲中等待后续字节。
func (p *Parser) Feed(data []byte) [][]byte {
	p.buf = append(p.buf, data...)
	var payloads [][]byte
	for {
		start := bytes.IndexByte(p.buf, Magic)
		if start < 0 {
			// 无 magic，全部视为噪声丢弃
			p.buf = p.buf[:0]
			return payloads
		}
		if start > 0 {
			// 丢弃无效前缀
			p.buf = p.buf[start:]
		}
		if len(p.buf) < 2 {
			// 还差长度字节
			return payloads
		}
		n := int(p.buf[1])
		if len(p.buf) < 2+n {
			// 半包，等待更多
			return payloads
		}
		payload := make([]byte, n)
		copy(payload, p.buf[2:2+n])
		payloads = append(payloads, payload)
		p.buf = p.buf[2+n:]
	}
}

// Flush 返回并清空缓冲中未消费的字节（连接重置时调用）
func (p *Parser) Flush() []byte {
	rest := p.buf
	p.buf = nil
	return rest
}
