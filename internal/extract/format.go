package extract

import (
	"strings"
)

// Document is the formatted artifact: engine blocks reduced to the plain
// text, key-value pairs, and tables the classifier prompt consumes.
type Document struct {
	Pages     int        `json:"pages"`
	Text      string     `json:"text"`
	Lines     []string   `json:"lines,omitempty"`
	KeyValues []KeyValue `json:"keyValues,omitempty"`
	Tables    []Table    `json:"tables,omitempty"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Table struct {
	Page int32      `json:"page,omitempty"`
	Rows [][]string `json:"rows"`
}

// FormatDocument assembles the formatted document from raw engine output.
// Lines keep the engine's reading order. Key-value pairs and tables are only
// present when the job ran with the matching analysis features.
func FormatDocument(result *EngineResult) *Document {
	byID := make(map[string]*Block, len(result.Blocks))
	for i := range result.Blocks {
		byID[result.Blocks[i].ID] = &result.Blocks[i]
	}

	doc := &Document{Pages: int(result.Pages)}
	maxPage := int32(0)
	for i := range result.Blocks {
		b := &result.Blocks[i]
		if b.Page > maxPage {
			maxPage = b.Page
		}
		switch b.Type {
		case "LINE":
			doc.Lines = append(doc.Lines, b.Text)
		case "KEY_VALUE_SET":
			if kv, ok := keyValueFrom(b, byID); ok {
				doc.KeyValues = append(doc.KeyValues, kv)
			}
		case "TABLE":
			if table, ok := tableFrom(b, byID); ok {
				doc.Tables = append(doc.Tables, table)
			}
		}
	}

	doc.Text = strings.Join(doc.Lines, "\n")
	if doc.Pages == 0 && maxPage > 0 {
		doc.Pages = int(maxPage)
	}
	return doc
}

func keyValueFrom(b *Block, byID map[string]*Block) (KeyValue, bool) {
	if !hasEntityType(b, "KEY") {
		return KeyValue{}, false
	}
	key := gatherText(b.ChildIDs, byID)
	if key == "" {
		return KeyValue{}, false
	}

	var value string
	for _, valueID := range b.ValueIDs {
		valueBlock, ok := byID[valueID]
		if !ok {
			continue
		}
		if v := gatherText(valueBlock.ChildIDs, byID); v != "" {
			if value != "" {
				value += " "
			}
			value += v
		}
	}
	return KeyValue{Key: key, Value: value}, true
}

func tableFrom(b *Block, byID map[string]*Block) (Table, bool) {
	maxRow, maxCol := int32(0), int32(0)
	cells := make([]*Block, 0, len(b.ChildIDs))
	for _, childID := range b.ChildIDs {
		cell, ok := byID[childID]
		if !ok || cell.Type != "CELL" {
			continue
		}
		cells = append(cells, cell)
		if cell.RowIndex > maxRow {
			maxRow = cell.RowIndex
		}
		if cell.ColumnIndex > maxCol {
			maxCol = cell.ColumnIndex
		}
	}
	if maxRow == 0 || maxCol == 0 {
		return Table{}, false
	}

	rows := make([][]string, maxRow)
	for i := range rows {
		rows[i] = make([]string, maxCol)
	}
	for _, cell := range cells {
		rows[cell.RowIndex-1][cell.ColumnIndex-1] = gatherText(cell.ChildIDs, byID)
	}
	return Table{Page: b.Page, Rows: rows}, true
}

// gatherText joins the WORD children of a block; selected checkboxes render
// as a marker so the classifier sees them.
func gatherText(ids []string, byID map[string]*Block) string {
	var parts []string
	for _, id := range ids {
		child, ok := byID[id]
		if !ok {
			continue
		}
		switch child.Type {
		case "WORD":
			if child.Text != "" {
				parts = append(parts, child.Text)
			}
		case "SELECTION_ELEMENT":
			if child.SelectionStatus == "SELECTED" {
				parts = append(parts, "[X]")
			}
		}
	}
	return strings.Join(parts, " ")
}

func hasEntityType(b *Block, entityType string) bool {
	for _, et := range b.EntityTypes {
		if et == entityType {
			return true
		}
	}
	return false
}
