package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/fragment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

// Proto converts h to its wire form. Fragments travel as markup strings.
func (h Hit) Proto() proto.Hit {
	return proto.Hit{
		DocID:        uint64(h.DocID),
		Score:        int32(h.Score),
		MatchType:    string(h.MatchType),
		Source:       h.Source.String(),
		Target:       h.Target.String(),
		SourceLocale: h.SourceLocale,
		TargetLocale: h.TargetLocale,
		Metadata:     h.Metadata,
	}
}

// FromProto rebuilds a hit received over the wire.
func FromProto(p proto.Hit) Hit {
	return Hit{
		DocID:        index.DocID(p.DocID),
		Score:        int(p.Score),
		MatchType:    MatchType(p.MatchType),
		Source:       fragment.Parse(p.Source),
		Target:       fragment.Parse(p.Target),
		SourceLocale: p.SourceLocale,
		TargetLocale: p.TargetLocale,
		Metadata:     p.Metadata,
	}
}

func ToProtoHits(hits []Hit) []proto.Hit {
	out := make([]proto.Hit, len(hits))
	for i, h := range hits {
		out[i] = h.Proto()
	}
	return out
}
