package catalog

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// DefaultDataPrefix is the host-qualified path every dataset base URL starts with.
const DefaultDataPrefix = "https://api.census.gov/data"

// Alias chains for feed fields. Keys are tried in order; a key with a prefix
// matches the qualified name, a bare key matches the local name under any prefix.
var (
	datasetKeys      = []string{"dcat:Dataset", "Dataset"}
	titleKeys        = []string{"dct:title", "title"}
	descriptionKeys  = []string{"dct:description", "description"}
	landingPageKeys  = []string{"dcat:landingPage", "landingPage"}
	distributionKeys = []string{"dcat:distribution", "distribution"}
	accessURLKeys    = []string{"dcat:accessURL", "accessURL", "dcat:downloadURL", "downloadURL"}
)

var (
	datasetOpenRe  = regexp.MustCompile(`<([A-Za-z_][\w.-]*:)?Dataset[\s/>]`)
	datasetCloseRe = regexp.MustCompile(`</([A-Za-z_][\w.-]*:)?Dataset\s*>`)
	xmlnsDeclRe    = regexp.MustCompile(`xmlns:([A-Za-z_][\w.-]*)\s*=\s*("[^"]*"|'[^']*')`)
	prefixUseRe    = regexp.MustCompile(`</?([A-Za-z_][\w.-]*):[A-Za-z_]`)
	attrPrefixRe   = regexp.MustCompile(`\s([A-Za-z_][\w.-]*):[A-Za-z_][\w.-]*\s*=`)
)

// FeedParser turns a DCAT feed document into raw dataset descriptors.
type FeedParser struct {
	dataPrefix string
	embedded   *regexp.Regexp
}

// NewFeedParser builds a parser that accepts base URLs under dataPrefix.
func NewFeedParser(dataPrefix string) *FeedParser {
	dataPrefix = strings.TrimRight(strings.TrimSpace(dataPrefix), "/")
	if dataPrefix == "" {
		dataPrefix = DefaultDataPrefix
	}
	return &FeedParser{
		dataPrefix: dataPrefix,
		embedded:   regexp.MustCompile(regexp.QuoteMeta(dataPrefix) + `/[\w/\-]+`),
	}
}

// Parse returns one descriptor per dataset element in document order.
// It never fails; unparsable elements yield empty descriptors.
func (p *FeedParser) Parse(doc []byte) []RawDatasetDescriptor {
	root, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return p.parseChunks(doc)
	}
	datasets := findAll(root, datasetKeys)
	out := make([]RawDatasetDescriptor, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, p.describe(ds))
	}
	return out
}

// parseChunks recovers from a document that does not parse as a whole by
// parsing each dataset element on its own.
func (p *FeedParser) parseChunks(doc []byte) []RawDatasetDescriptor {
	text := string(doc)
	decls := namespaceDecls(text)
	var out []RawDatasetDescriptor
	for _, chunk := range splitDatasets(text) {
		root, err := xmlquery.Parse(strings.NewReader(wrapChunk(chunk, decls)))
		if err != nil {
			out = append(out, RawDatasetDescriptor{})
			continue
		}
		ds := findFirst(root, datasetKeys)
		if ds == nil {
			out = append(out, RawDatasetDescriptor{})
			continue
		}
		out = append(out, p.describe(ds))
	}
	return out
}

func (p *FeedParser) describe(ds *xmlquery.Node) RawDatasetDescriptor {
	return RawDatasetDescriptor{
		Title:        textOf(findFirst(ds, titleKeys)),
		Description:  textOf(findFirst(ds, descriptionKeys)),
		LandingPage:  textOf(findFirst(ds, landingPageKeys)),
		BaseURLGuess: p.guessBaseURL(ds),
	}
}

func (p *FeedParser) guessBaseURL(ds *xmlquery.Node) string {
	candidates := make(map[string]struct{})
	for _, dist := range findAll(ds, distributionKeys) {
		for _, u := range findAll(dist, accessURLKeys) {
			raw := textOf(u)
			if raw == "" {
				raw = strings.TrimSpace(resourceAttr(u))
			}
			if p.acceptDistributionURL(raw) {
				candidates[strings.SplitN(raw, "#", 2)[0]] = struct{}{}
			}
		}
	}
	if len(candidates) == 0 {
		walk(ds, func(n *xmlquery.Node) {
			if n.Type != xmlquery.TextNode && n.Type != xmlquery.CharDataNode {
				return
			}
			if !strings.Contains(n.Data, p.dataPrefix+"/") {
				return
			}
			if m := p.embedded.FindString(n.Data); m != "" {
				candidates[m] = struct{}{}
			}
		})
	}
	if len(candidates) == 0 {
		return ""
	}
	sorted := make([]string, 0, len(candidates))
	for c := range candidates {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)
	return sorted[0]
}

func (p *FeedParser) acceptDistributionURL(raw string) bool {
	return strings.Contains(raw, "/data/") && strings.HasPrefix(raw, p.dataPrefix)
}

// findFirst returns the first descendant of n, in document order, matching the
// earliest key of the chain that matches anything.
func findFirst(n *xmlquery.Node, keys []string) *xmlquery.Node {
	for _, key := range keys {
		var found *xmlquery.Node
		walk(n, func(c *xmlquery.Node) {
			if found == nil && c != n && matches(c, key) {
				found = c
			}
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant of n matching any key, in document order.
func findAll(n *xmlquery.Node, keys []string) []*xmlquery.Node {
	var out []*xmlquery.Node
	walk(n, func(c *xmlquery.Node) {
		if c == n {
			return
		}
		for _, key := range keys {
			if matches(c, key) {
				out = append(out, c)
				return
			}
		}
	})
	return out
}

func matches(n *xmlquery.Node, key string) bool {
	if n == nil || n.Type != xmlquery.ElementNode {
		return false
	}
	prefix, local, qualified := strings.Cut(key, ":")
	if !qualified {
		return n.Data == key
	}
	return n.Data == local && n.Prefix == prefix
}

func walk(n *xmlquery.Node, visit func(*xmlquery.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func textOf(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

func resourceAttr(n *xmlquery.Node) string {
	for _, attr := range n.Attr {
		if attr.Name.Local == "resource" {
			return attr.Value
		}
	}
	return ""
}

// splitDatasets cuts the raw document into one chunk per dataset element. An
// element without a closing tag runs until the next opening tag.
func splitDatasets(text string) []string {
	opens := datasetOpenRe.FindAllStringIndex(text, -1)
	chunks := make([]string, 0, len(opens))
	for i, open := range opens {
		end := len(text)
		if i+1 < len(opens) {
			end = opens[i+1][0]
		}
		segment := text[open[0]:end]
		if loc := datasetCloseRe.FindStringIndex(segment); loc != nil {
			segment = segment[:loc[1]]
		}
		chunks = append(chunks, segment)
	}
	return chunks
}

func namespaceDecls(text string) map[string]string {
	decls := make(map[string]string)
	for _, m := range xmlnsDeclRe.FindAllStringSubmatch(text, -1) {
		if _, ok := decls[m[1]]; !ok {
			decls[m[1]] = m[2]
		}
	}
	return decls
}

// wrapChunk places a chunk under a synthetic root that declares every prefix
// the chunk uses, so the decoder does not reject undeclared namespaces.
func wrapChunk(chunk string, decls map[string]string) string {
	used := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{prefixUseRe, attrPrefixRe} {
		for _, m := range re.FindAllStringSubmatch(chunk, -1) {
			used[m[1]] = struct{}{}
		}
	}
	names := make([]string, 0, len(used))
	for name := range used {
		if name != "xml" && name != "xmlns" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<feed")
	for _, name := range names {
		value, ok := decls[name]
		if !ok {
			value = fmt.Sprintf("%q", "urn:undeclared:"+name)
		}
		fmt.Fprintf(&b, " xmlns:%s=%s", name, value)
	}
	b.WriteString(">")
	b.WriteString(chunk)
	b.WriteString("</feed>")
	return b.String()
}
