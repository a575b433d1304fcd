package gbm

import "sync"

//Task is one unit of work submitted to a Pool.
type Task interface {
	Run()
}

//Pool fans tasks out to a fixed number of workers. Close after the last
//AddTask, then WaitAll blocks until every submitted task has run.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup
}

//NewPool starts threadsNum workers.
func NewPool(threadsNum int) *Pool {
	if threadsNum < 1 {
		threadsNum = 1
	}
	pool := &Pool{tasks: make(chan Task, threadsNum)}
	pool.wg.Add(threadsNum)
	for w := 0; w < threadsNum; w++ {
		go func() {
			defer pool.wg.Done()
			for task := range pool.tasks {
				task.Run()
			}
		}()
	}
	return pool
}

//AddTask submits one task. It blocks when all workers are busy and the
//buffer is full.
func (pool *Pool) AddTask(task Task) {
	pool.tasks <- task
}

//Close signals that no further tasks will be submitted.
func (pool *Pool) Close() {
	close(pool.tasks)
}

//WaitAll blocks until all workers have drained the task channel.
func (pool *Pool) WaitAll() {
	pool.wg.Wait()
}

//taskFunc adapts a plain closure to the Task interface.
type taskFunc func()

func (f taskFunc) Run() { f() }

//runSpans executes one task per partition span on a temporary pool.
func runSpans(spans []Span, threads int, job func(part int, span Span)) {
	if threads <= 1 || len(spans) == 1 {
		for p, span := range spans {
			job(p, span)
		}
		return
	}
	pool := NewPool(threads)
	for p, span := range spans {
		p, span := p, span
		pool.AddTask(taskFunc(func() { job(p, span) }))
	}
	pool.Close()
	pool.WaitAll()
}
