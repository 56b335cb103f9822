package application

import (
	pkgDomain "github.com/mateusmacedo/go-boarding/pkg/domain"
)

const FindBoardingQueueQuery = "FindBoardingQueue"

type FindBoardingQueueData struct {
	VehicleID string
}

type findBoardingQueueQuery struct {
	data FindBoardingQueueData
}

func (q findBoardingQueueQuery) QueryName() string {
	return FindBoardingQueueQuery
}

func (q findBoardingQueueQuery) Payload() FindBoardingQueueData {
	return q.data
}

func NewFindBoardingQueueQuery(data FindBoardingQueueData) pkgDomain.Query[FindBoardingQueueData] {
	return findBoardingQueueQuery{data: data}
}
