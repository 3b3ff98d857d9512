package persistence

import "github.com/afpipeline/runtime/internal/modules/handler"

// Settings history of the built-in handlers.
func init() {
	RegisterCodec(handler.TypeEliminateDuplicates, Codec{
		Version: 2,
		Fields:  []Field{{Name: "ignoreChildren", Since: 2, Default: false}},
	})
	RegisterCodec(handler.TypeRemoveEntriesFromList, Codec{
		Version: 2,
		Fields:  []Field{{Name: "caseSensitive", Since: 2, Default: false}},
	})
	RegisterCodec(handler.TypeMoveAndModify, Codec{
		Version: 3,
		Fields: []Field{
			{Name: "moveTo", Since: 1, Default: handler.MoveToRoot},
			{Name: "deleteEmptyAncestors", Since: 2, Default: false},
			{Name: "addSpecifiedType", Since: 3, Default: false},
			{Name: "specifiedType", Since: 3, Default: ""},
		},
	})
	RegisterCodec(handler.TypeRemoveSubAttributes, Codec{
		Version: 2,
		Fields: []Field{
			{Name: "conditionalRemove", Since: 1, Default: false},
			{Name: "compareTo", Since: 2, Default: handler.CompareFixed},
		},
	})
	RegisterCodec(handler.TypeReformatPersonNames, Codec{
		Version: 2,
		Fields: []Field{
			{Name: "reformatSubAttributes", Since: 2, Default: false},
			{Name: "personNames", Since: 2, Default: []interface{}{handler.DefaultPersonName}},
		},
	})
	RegisterCodec(handler.TypeConditional, Codec{
		Version: 1,
		Fields:  []Field{{Name: "invert", Since: 1, Default: false}},
	})
}
