package rowan

import (
	"github.com/evergreen-ci/rowan/model"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// DecodeRow unmarshals a row's keyed fields into a typed struct using
// bson codecs, so entity packages can describe their schema with
// ordinary tagged structs instead of digging through documents.
func DecodeRow(row model.Row, out any) error {
	data, err := bson.Marshal(row.Fields)
	if err != nil {
		return errors.Wrapf(err, "marshalling fields of row '%v'", row.ID)
	}
	return errors.Wrapf(bson.Unmarshal(data, out), "decoding row '%v'", row.ID)
}

// PatchFrom renders a tagged struct into a patch's Set document. Pair
// it with bson omitempty tags to keep the patch sparse.
func PatchFrom(val any) (model.Patch, error) {
	data, err := bson.Marshal(val)
	if err != nil {
		return model.Patch{}, errors.Wrap(err, "marshalling patch value")
	}

	set := model.Document{}
	if err := bson.Unmarshal(data, &set); err != nil {
		return model.Patch{}, errors.Wrap(err, "rendering patch document")
	}
	if len(set) == 0 {
		set = nil
	}

	return model.Patch{Set: set}, nil
}

// TypedTransform adapts a transform written against a typed row
// schema into the document transform the engine runs. The adapter
// decodes each row into T before calling fn; decode failures surface
// as ordinary transform errors for that row. It serves upgrade and
// cleanup steps alike.
func TypedTransform[T any](fn func(T) (model.Patch, error)) Transform {
	return func(row model.Row) (model.Patch, error) {
		var typed T
		if err := DecodeRow(row, &typed); err != nil {
			return model.Patch{}, errors.WithStack(err)
		}
		return fn(typed)
	}
}
