package domain

var Tables = []interface{}{
	&ChatInstance{},
	&ChatMessage{},
}
