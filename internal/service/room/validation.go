package room

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/scenesync/server/internal/domain"
)

var RoomNameRule = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, 100),
}

var RoomDescriptionRule = []validation.Rule{
	validation.RuneLength(0, 500),
}

var RoomRefRule = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, 64),
}

var RoomIdRule = []validation.Rule{
	validation.Required,
	is.UUID,
}

var PositionRule = []validation.Rule{
	validation.Min(0.0),
}

var DurationRule = []validation.Rule{
	validation.Min(0.0).Exclusive(),
}

var MessageTextRule = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, domain.MaxMessageLength),
}

var MessageTypeRule = []validation.Rule{
	validation.In(domain.MessageText, domain.MessageEmoji),
}

var HistoryLimitRule = []validation.Rule{
	validation.Min(1),
	validation.Max(100),
}

var VideoUrlRule = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, 2048),
}

var VideoTitleRule = []validation.Rule{
	validation.RuneLength(0, 200),
}
